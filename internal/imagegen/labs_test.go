package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckcraft/internal/credential"
	"deckcraft/pkg/httputil"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func testCredential() *credential.Credential {
	return &credential.Credential{AccessToken: "tok-123", ExpiresAt: time.Now().Add(time.Hour)}
}

type recorded struct {
	path string
	auth string
	body map[string]any
}

type fakeLabs struct {
	mu       sync.Mutex
	requests []recorded
	handlers map[string]http.HandlerFunc
}

func newFakeLabs(t *testing.T, handlers map[string]http.HandlerFunc) (*fakeLabs, *LabsClient) {
	t.Helper()
	f := &fakeLabs{handlers: handlers}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)

	client := NewLabsClient(LabsOptions{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
		Retry: httputil.RetryConfig{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
	})
	return f, client
}

func (f *fakeLabs) serve(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	f.mu.Lock()
	f.requests = append(f.requests, recorded{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
	h := f.handlers[r.URL.Path]
	f.mu.Unlock()

	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (f *fakeLabs) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		out = append(out, r.path)
	}
	return out
}

func (f *fakeLabs) last(path string) recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].path == path {
			return f.requests[i]
		}
	}
	return recorded{}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func imageResponse(images ...string) map[string]any {
	var generated []map[string]any
	for _, img := range images {
		generated = append(generated, map[string]any{"encodedImage": img, "seed": 1})
	}
	return map[string]any{"imagePanels": []map[string]any{{"generatedImages": generated}}}
}

func TestNormalizeAspectRatio(t *testing.T) {
	tests := []struct {
		in   string
		want Orientation
	}{
		{"16:9", Landscape},
		{"4:3", Landscape},
		{"1:1", Square},
		{"9:16", Portrait},
		{"3:4", Portrait},
		{" 16:9 ", Landscape},
		{"21:9", Square},
		{"", Square},
		{"wide", Square},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAspectRatio(tt.in))
		})
	}
}

func TestCanonicalRatio(t *testing.T) {
	assert.Equal(t, "4:3", CanonicalRatio("4:3"))
	assert.Equal(t, "1:1", CanonicalRatio("2:1"))
}

func TestReferenceModel(t *testing.T) {
	assert.Equal(t, "", ReferenceModel(0))
	assert.Equal(t, ModelSingleReference, ReferenceModel(1))
	assert.Equal(t, ModelMultiReference, ReferenceModel(2))
	assert.Equal(t, ModelMultiReference, ReferenceModel(3))
}

func TestGenerateFromText(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngHeader)
	f, client := newFakeLabs(t, map[string]http.HandlerFunc{
		pathGenerate: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, imageResponse(encoded))
		},
	})

	res := client.GenerateFromText(context.Background(), "a calm gradient", "16:9", testCredential())
	require.True(t, res.Success, res.Error)
	require.Len(t, res.Images, 1)

	img, err := res.Image()
	require.NoError(t, err)
	assert.Equal(t, pngHeader, img)

	req := f.last(pathGenerate)
	assert.Equal(t, "Bearer tok-123", req.auth)
	assert.Equal(t, "a calm gradient", req.body["prompt"])
	settings := req.body["imageModelSettings"].(map[string]any)
	assert.Equal(t, ModelText, settings["imageModel"])
	assert.Equal(t, string(Landscape), settings["aspectRatio"])
	cc := req.body["clientContext"].(map[string]any)
	assert.NotEmpty(t, cc["sessionId"])
}

func TestGenerateFromTextUsesFreshSessionPerCall(t *testing.T) {
	f, client := newFakeLabs(t, map[string]http.HandlerFunc{
		pathGenerate: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, imageResponse("aGVsbG8="))
		},
	})

	client.GenerateFromText(context.Background(), "one", "1:1", testCredential())
	first := f.last(pathGenerate).body["clientContext"].(map[string]any)["sessionId"]
	client.GenerateFromText(context.Background(), "two", "1:1", testCredential())
	second := f.last(pathGenerate).body["clientContext"].(map[string]any)["sessionId"]

	assert.NotEqual(t, first, second)
}

func TestGenerateFromTextFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "api error message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				writeJSON(w, map[string]any{"error": map[string]any{"code": 400, "message": "prompt blocked"}})
			},
			wantErr: "prompt blocked",
		},
		{
			name: "server error after retries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: "500",
		},
		{
			name: "no images",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]any{"imagePanels": []any{}})
			},
			wantErr: "no images",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			wantErr: "parse response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newFakeLabs(t, map[string]http.HandlerFunc{pathGenerate: tt.handler})
			res := client.GenerateFromText(context.Background(), "p", "16:9", testCredential())
			assert.False(t, res.Success)
			assert.Empty(t, res.Images)
			assert.Contains(t, res.Error, tt.wantErr)
		})
	}
}

func TestGenerateFromTextWithoutCredential(t *testing.T) {
	f, client := newFakeLabs(t, nil)
	res := client.GenerateFromText(context.Background(), "p", "16:9", nil)
	assert.False(t, res.Success)
	assert.Empty(t, f.paths())
}

func TestGenerateFromReferencesSelectsModel(t *testing.T) {
	refs := []StyleReference{
		{Category: CategoryStyle, MediaID: "m1", Caption: "warm"},
		{Category: CategoryStyle, MediaID: "m2", Caption: "soft"},
		{Category: CategoryStyle, MediaID: "m3"},
	}

	tests := []struct {
		count     int
		wantPath  string
		wantModel string
	}{
		{0, pathGenerate, ModelText},
		{1, pathRecipe, ModelSingleReference},
		{2, pathRecipe, ModelMultiReference},
		{3, pathRecipe, ModelMultiReference},
	}

	for _, tt := range tests {
		t.Run(tt.wantModel, func(t *testing.T) {
			ok := func(w http.ResponseWriter, r *http.Request) { writeJSON(w, imageResponse("aGVsbG8=")) }
			f, client := newFakeLabs(t, map[string]http.HandlerFunc{pathGenerate: ok, pathRecipe: ok})

			res := client.GenerateFromReferences(context.Background(), "p", "9:16", testCredential(), refs[:tt.count])
			require.True(t, res.Success, res.Error)
			require.Equal(t, []string{tt.wantPath}, f.paths())

			body := f.last(tt.wantPath).body
			settings := body["imageModelSettings"].(map[string]any)
			assert.Equal(t, tt.wantModel, settings["imageModel"])
			assert.Equal(t, string(Portrait), settings["aspectRatio"])

			if tt.count > 0 {
				inputs := body["recipeMediaInputs"].([]any)
				require.Len(t, inputs, tt.count)
				first := inputs[0].(map[string]any)
				assert.Equal(t, "warm", first["caption"])
				media := first["mediaInput"].(map[string]any)
				assert.Equal(t, "m1", media["mediaGenerationId"])
				assert.Equal(t, "MEDIA_CATEGORY_STYLE", media["mediaCategory"])
			}
		})
	}
}

func TestAnalyzeImageIssuesUploadAndCaptionConcurrently(t *testing.T) {
	captionSeen := make(chan struct{})
	f, client := newFakeLabs(t, map[string]http.HandlerFunc{
		pathUpload: func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-captionSeen:
			case <-time.After(2 * time.Second):
				w.WriteHeader(http.StatusGatewayTimeout)
				return
			}
			writeJSON(w, map[string]any{"uploadMediaGenerationId": "media-1"})
		},
		pathCaption: func(w http.ResponseWriter, r *http.Request) {
			close(captionSeen)
			writeJSON(w, map[string]any{"candidates": []map[string]any{{"output": " a dusk skyline "}}})
		},
	})

	a := client.AnalyzeImage(context.Background(), pngHeader, CategoryStyle, testCredential())
	require.True(t, a.Success, a.Error)
	assert.Equal(t, "media-1", a.MediaID)
	assert.Equal(t, "a dusk skyline", a.Caption)

	upload := f.last(pathUpload).body["uploadMediaInput"].(map[string]any)
	assert.Contains(t, upload["rawBytes"], "data:image/png;base64,")
	assert.Equal(t, "MEDIA_CATEGORY_STYLE", upload["mediaCategory"])

	ref := a.Reference(CategoryStyle)
	assert.Equal(t, StyleReference{Category: CategoryStyle, MediaID: "media-1", Caption: "a dusk skyline", MIMEType: "image/png"}, ref)
}

func TestAnalyzeImageCaptionFailureIsNotFatal(t *testing.T) {
	_, client := newFakeLabs(t, map[string]http.HandlerFunc{
		pathUpload: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"uploadMediaGenerationId": "media-2"})
		},
		pathCaption: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		},
	})

	a := client.AnalyzeImage(context.Background(), pngHeader, CategoryStyle, testCredential())
	assert.True(t, a.Success)
	assert.Equal(t, "media-2", a.MediaID)
	assert.Empty(t, a.Caption)
}

func TestAnalyzeImageUploadFailure(t *testing.T) {
	_, client := newFakeLabs(t, map[string]http.HandlerFunc{
		pathUpload: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{})
		},
		pathCaption: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"candidates": []map[string]any{{"output": "fine"}}})
		},
	})

	a := client.AnalyzeImage(context.Background(), pngHeader, CategoryStyle, testCredential())
	assert.False(t, a.Success)
	assert.Contains(t, a.Error, "no media id")
}

func TestAnalyzeImageUploadFailureCancelsCaption(t *testing.T) {
	_, client := newFakeLabs(t, map[string]http.HandlerFunc{
		pathUpload: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{})
		},
		pathCaption: func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
				writeJSON(w, map[string]any{"candidates": []map[string]any{{"output": "late"}}})
			}
		},
	})

	start := time.Now()
	a := client.AnalyzeImage(context.Background(), pngHeader, CategoryStyle, testCredential())
	assert.False(t, a.Success)
	assert.Contains(t, a.Error, "upload image")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestAnalyzeImageRejectsEmptyInput(t *testing.T) {
	f, client := newFakeLabs(t, nil)
	a := client.AnalyzeImage(context.Background(), nil, CategoryStyle, testCredential())
	assert.False(t, a.Success)
	assert.Empty(t, f.paths())
}

func TestResultImage(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("img"))

	data, err := Succeeded("data:image/png;base64," + encoded).Image()
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)

	_, err = Failed("boom %d", 1).Image()
	assert.ErrorContains(t, err, "boom 1")

	_, err = Result{Success: true}.Image()
	assert.Error(t, err)

	_, err = Succeeded("!!!").Image()
	assert.ErrorContains(t, err, "decode image")
}
