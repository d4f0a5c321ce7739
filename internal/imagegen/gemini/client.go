package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"deckcraft/internal/credential"
	"deckcraft/internal/imagegen"
)

const (
	DefaultImageModel   = "gemini-2.5-flash-image"
	DefaultCaptionModel = "gemini-2.5-flash"

	defaultMIMEType = "image/png"

	captionPrompt = "Describe the visual style of this image in one sentence: palette, lighting, texture and composition. No subject matter."
)

type Options struct {
	// APIKey overrides the credential's access token when set.
	APIKey              string
	Model               string
	ReferenceModel      string
	MultiReferenceModel string
	CaptionModel        string
}

// backend is the slice of the genai SDK this package calls.
type backend interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Upload(ctx context.Context, data []byte, mimeType string) (string, error)
}

type sdkBackend struct {
	client *genai.Client
}

func (b *sdkBackend) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return b.client.Models.GenerateContent(ctx, model, contents, config)
}

func (b *sdkBackend) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	file, err := b.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return "", err
	}
	return file.URI, nil
}

func newSDKBackend(ctx context.Context, apiKey string) (backend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &sdkBackend{client: client}, nil
}

// Client implements imagegen.Generator on the Gemini API. Reference media ids
// are File API URIs.
type Client struct {
	opts Options

	mu       sync.Mutex
	backends map[string]backend
	connect  func(ctx context.Context, apiKey string) (backend, error)
	seed     func() int32
}

var _ imagegen.Generator = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.Model == "" {
		opts.Model = DefaultImageModel
	}
	if opts.ReferenceModel == "" {
		opts.ReferenceModel = opts.Model
	}
	if opts.MultiReferenceModel == "" {
		opts.MultiReferenceModel = opts.ReferenceModel
	}
	if opts.CaptionModel == "" {
		opts.CaptionModel = DefaultCaptionModel
	}
	return &Client{
		opts:     opts,
		backends: make(map[string]backend),
		connect:  newSDKBackend,
		seed:     func() int32 { return rand.Int32N(1_000_000) },
	}
}

func (c *Client) backend(ctx context.Context, cred *credential.Credential) (backend, error) {
	key := c.opts.APIKey
	if key == "" {
		if cred == nil {
			return nil, fmt.Errorf("no credential")
		}
		key = cred.AccessToken
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.backends[key]; ok {
		return b, nil
	}
	b, err := c.connect(ctx, key)
	if err != nil {
		return nil, err
	}
	c.backends[key] = b
	return b, nil
}

func (c *Client) GenerateFromText(ctx context.Context, prompt, aspectRatio string, cred *credential.Credential) imagegen.Result {
	return c.generate(ctx, c.opts.Model, []*genai.Part{genai.NewPartFromText(prompt)}, aspectRatio, cred)
}

func (c *Client) GenerateFromReferences(ctx context.Context, prompt, aspectRatio string, cred *credential.Credential, refs []imagegen.StyleReference) imagegen.Result {
	var model string
	switch imagegen.ReferenceModel(len(refs)) {
	case "":
		return c.GenerateFromText(ctx, prompt, aspectRatio, cred)
	case imagegen.ModelSingleReference:
		model = c.opts.ReferenceModel
	default:
		model = c.opts.MultiReferenceModel
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	parts := make([]*genai.Part, 0, len(refs)+1)
	for i, ref := range refs {
		mimeType := ref.MIMEType
		if mimeType == "" {
			mimeType = defaultMIMEType
		}
		parts = append(parts, genai.NewPartFromURI(ref.MediaID, mimeType))
		if ref.Caption != "" {
			fmt.Fprintf(&sb, "\nReference %d style: %s", i+1, ref.Caption)
		}
	}
	parts = append([]*genai.Part{genai.NewPartFromText(sb.String())}, parts...)

	return c.generate(ctx, model, parts, aspectRatio, cred)
}

func (c *Client) generate(ctx context.Context, model string, parts []*genai.Part, aspectRatio string, cred *credential.Credential) imagegen.Result {
	b, err := c.backend(ctx, cred)
	if err != nil {
		return imagegen.Failed("%v", err)
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: imagegen.CanonicalRatio(aspectRatio),
		},
		Seed: genai.Ptr(c.seed()),
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := b.GenerateContent(ctx, model, contents, config)
	if err != nil {
		slog.Debug("Gemini generation failed", "model", model, "error", err)
		return imagegen.Failed("generate: %v", err)
	}
	return parseImages(resp)
}

// AnalyzeImage uploads the image to the File API and captions it with the
// caption model concurrently. Only the upload decides success.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, category imagegen.Category, cred *credential.Credential) imagegen.Analysis {
	if len(image) == 0 {
		return imagegen.Analysis{Error: "empty image"}
	}
	b, err := c.backend(ctx, cred)
	if err != nil {
		return imagegen.Analysis{Error: err.Error()}
	}

	mimeType := http.DetectContentType(image)

	var (
		uri        string
		caption    string
		captionErr error
	)
	// A failed upload cancels the caption; a failed caption never fails the group.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		uri, err = b.Upload(gctx, image, mimeType)
		if err != nil {
			return fmt.Errorf("upload file: %w", err)
		}
		if uri == "" {
			return fmt.Errorf("upload returned no uri")
		}
		return nil
	})
	g.Go(func() error {
		caption, captionErr = c.caption(gctx, b, image, mimeType)
		return nil
	})
	if err := g.Wait(); err != nil {
		return imagegen.Analysis{Error: err.Error()}
	}

	if captionErr != nil {
		slog.Debug("Caption failed, continuing without caption", "category", category, "error", captionErr)
		caption = ""
	}
	return imagegen.Analysis{Success: true, MediaID: uri, Caption: caption, MIMEType: mimeType}
}

func (c *Client) caption(ctx context.Context, b backend, image []byte, mimeType string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(image, mimeType),
		genai.NewPartFromText(captionPrompt),
	}, genai.RoleUser)}

	resp, err := b.GenerateContent(ctx, c.opts.CaptionModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("caption: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty caption")
	}
	return text, nil
}

func parseImages(resp *genai.GenerateContentResponse) imagegen.Result {
	if resp == nil || len(resp.Candidates) == 0 {
		return imagegen.Failed("no candidates")
	}
	var images []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				images = append(images, base64.StdEncoding.EncodeToString(part.InlineData.Data))
			}
		}
	}
	if len(images) == 0 {
		return imagegen.Failed("no image data")
	}
	return imagegen.Succeeded(images...)
}
