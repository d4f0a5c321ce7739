package httputil

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryConfig controls retries. MaxRetries is taken as given, so the zero
// value makes a single attempt; use DefaultRetryConfig for the defaults.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// RetryClient retries requests on network errors, 429 and 5xx responses.
// When retries are exhausted on a retryable status the final response is
// returned unchanged so callers can inspect it.
type RetryClient struct {
	client *http.Client
	config RetryConfig
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.code)
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

func NewRetryClient(client *http.Client, config RetryConfig) *RetryClient {
	if client == nil {
		client = http.DefaultClient
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier == 0 {
		config.Multiplier = 2.0
	}

	return &RetryClient{
		client: client,
		config: config,
	}
}

func (c *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	attempts := c.config.MaxRetries + 1
	attempt := 0

	err := retry.Do(
		func() error {
			if attempt > 0 && req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return retry.Unrecoverable(bodyErr)
				}
				req.Body = body
			}
			attempt++

			r, err := c.client.Do(req)
			if err != nil {
				resp = nil
				return err
			}
			resp = r
			if retryableStatus(r.StatusCode) {
				if attempt < attempts {
					_ = r.Body.Close()
				}
				return &statusError{code: r.StatusCode}
			}
			return nil
		},
		retry.Attempts(uint(attempts)),
		retry.Context(req.Context()),
		retry.LastErrorOnly(true),
		retry.RetryIf(shouldRetry),
		retry.DelayType(c.backoff),
	)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && resp != nil && attempt >= attempts {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

// backoff receives the 1-based retry number from retry-go.
func (c *RetryClient) backoff(n uint, _ error, _ *retry.Config) time.Duration {
	if n == 0 {
		n = 1
	}
	delay := float64(c.config.InitialDelay) * math.Pow(c.config.Multiplier, float64(n-1))
	delay = math.Min(delay, float64(c.config.MaxDelay))
	return applyJitter(time.Duration(delay))
}

func shouldRetry(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func retryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code < 600
}

func applyJitter(delay time.Duration) time.Duration {
	jitterFactor := 0.9 + rand.Float64()*0.2
	return time.Duration(float64(delay) * jitterFactor)
}
