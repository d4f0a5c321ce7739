package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// scriptedServer answers with statuses in order and repeats the last one.
func scriptedServer(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		if n > len(statuses) {
			n = len(statuses)
		}
		w.WriteHeader(statuses[n-1])
		_, _ = w.Write([]byte(http.StatusText(statuses[n-1])))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestRetryClientStatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		retries   int
		wantCode  int
		wantCalls int32
	}{
		{"okFirstTry", []int{200}, 2, 200, 1},
		{"unavailableThenOK", []int{503, 503, 200}, 3, 200, 3},
		{"rateLimitedThenOK", []int{429, 200}, 2, 200, 2},
		{"internalErrorThenOK", []int{500, 200}, 2, 200, 2},
		{"badGatewayThenOK", []int{502, 200}, 2, 200, 2},
		{"badRequestNotRetried", []int{400}, 3, 400, 1},
		{"unauthorizedNotRetried", []int{401}, 3, 401, 1},
		{"notFoundNotRetried", []int{404}, 3, 404, 1},
		{"exhaustedReturnsLastResponse", []int{503}, 2, 503, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, calls := scriptedServer(t, tt.statuses...)
			client := NewRetryClient(server.Client(), fastRetry(tt.retries))

			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if got := atomic.LoadInt32(calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestRetryClientExhaustedResponseIsReadable(t *testing.T) {
	server, _ := scriptedServer(t, http.StatusServiceUnavailable)
	client := NewRetryClient(server.Client(), fastRetry(1))

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != http.StatusText(http.StatusServiceUnavailable) {
		t.Errorf("body = %q", body)
	}
}

func TestRetryClientReplaysJSONBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRetryClient(server.Client(), fastRetry(2))

	payload := `{"prompt":"soft gradient","seed":42}`
	// NewRequest sets GetBody for *strings.Reader bodies.
	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(payload))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("attempts = %d, want 2", len(bodies))
	}
	for i, b := range bodies {
		if b != payload {
			t.Errorf("attempt %d body = %q, want %q", i+1, b, payload)
		}
	}
}

func TestRetryClientBackoffGrows(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		n := len(times)
		mu.Unlock()
		if n < 4 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRetryClient(server.Client(), RetryConfig{
		MaxRetries:   3,
		InitialDelay: 40 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 4 {
		t.Fatalf("attempts = %d, want 4", len(times))
	}

	// 40ms, 80ms, 160ms with up to 10% jitter; scheduling gets wide bounds.
	for i, want := range []time.Duration{40 * time.Millisecond, 80 * time.Millisecond, 160 * time.Millisecond} {
		got := times[i+1].Sub(times[i])
		if got < want/2 || got > want*3/2 {
			t.Errorf("delay %d = %v, want about %v", i+1, got, want)
		}
	}
}

func TestRetryClientCapsDelay(t *testing.T) {
	client := NewRetryClient(nil, RetryConfig{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   10,
	})

	for n := uint(0); n < 5; n++ {
		if d := client.backoff(n, nil, nil); d > 2200*time.Millisecond {
			t.Errorf("backoff(%d) = %v, want at most max delay plus jitter", n, d)
		}
	}
}

func TestRetryClientTransportErrors(t *testing.T) {
	client := NewRetryClient(&http.Client{Transport: failingTransport{}}, fastRetry(3))

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	if _, err := client.Do(req); err == nil {
		t.Fatal("expected error from failing transport")
	}
}

func TestRetryClientStopsOnCancelledContext(t *testing.T) {
	server, calls := scriptedServer(t, http.StatusServiceUnavailable)

	client := NewRetryClient(server.Client(), RetryConfig{
		MaxRetries:   5,
		InitialDelay: 200 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err == nil {
		_ = resp.Body.Close()
	}
	if got := atomic.LoadInt32(calls); got >= 6 {
		t.Errorf("expected retries to stop early, got %d attempts", got)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"status", &statusError{code: 503}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := shouldRetry(tt.err); got != tt.want {
			t.Errorf("shouldRetry(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewRetryClientDefaults(t *testing.T) {
	client := NewRetryClient(nil, RetryConfig{})

	if client.client != http.DefaultClient {
		t.Error("expected http.DefaultClient when nil is passed")
	}
	want := DefaultRetryConfig()
	want.MaxRetries = 0
	if client.config != want {
		t.Errorf("config = %+v, want %+v", client.config, want)
	}
}

func TestRetryClientZeroRetries(t *testing.T) {
	server, calls := scriptedServer(t, http.StatusServiceUnavailable)

	client := NewRetryClient(server.Client(), fastRetry(0))

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestRetryClientFirstDelayIsInitial(t *testing.T) {
	client := NewRetryClient(nil, RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2,
	})

	for n, want := range map[uint]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		got := client.backoff(n, nil, nil)
		if got < want*9/10 || got > want*11/10 {
			t.Errorf("backoff(%d) = %v, want %v within jitter", n, got, want)
		}
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("boom")
}
