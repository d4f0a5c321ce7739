package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"deckcraft/internal/credential"
	"deckcraft/pkg/httputil"
)

const (
	DefaultLabsURL = "https://aisandbox-pa.googleapis.com/v1"
	defaultTimeout = 90 * time.Second

	ModelText            = "IMAGEN_3_5"
	ModelSingleReference = "R2I"
	ModelMultiReference  = "GEM_PIX"

	workflowTool = "BACKBONE"
)

const (
	pathGenerate = "/whisk:generateImage"
	pathRecipe   = "/whisk:runImageRecipe"
	pathUpload   = "/whisk:uploadImage"
	pathCaption  = "/whisk:captionImage"
)

// ReferenceModel picks the remote model for a reference-conditioned call.
// It returns "" when there are no references and the text path applies.
func ReferenceModel(refs int) string {
	switch {
	case refs <= 0:
		return ""
	case refs == 1:
		return ModelSingleReference
	default:
		return ModelMultiReference
	}
}

type LabsOptions struct {
	BaseURL   string
	Timeout   time.Duration
	Retry     httputil.RetryConfig
	Transport http.RoundTripper
}

// LabsClient talks to the image sandbox HTTP API. It is safe for concurrent
// use; every call builds its own authenticated transport from the credential.
type LabsClient struct {
	baseURL   string
	timeout   time.Duration
	retry     httputil.RetryConfig
	transport http.RoundTripper
	sessionID func() string
	seed      func() int64
}

var _ Generator = (*LabsClient)(nil)

func NewLabsClient(opts LabsOptions) *LabsClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultLabsURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &LabsClient{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		timeout:   opts.Timeout,
		retry:     opts.Retry,
		transport: opts.Transport,
		sessionID: func() string { return ";" + uuid.NewString() },
		seed:      func() int64 { return rand.Int64N(1_000_000) },
	}
}

type clientContext struct {
	WorkflowID string `json:"workflowId,omitempty"`
	Tool       string `json:"tool"`
	SessionID  string `json:"sessionId"`
}

type imageModelSettings struct {
	ImageModel  string `json:"imageModel"`
	AspectRatio string `json:"aspectRatio"`
}

type mediaInput struct {
	MediaCategory     string `json:"mediaCategory"`
	MediaGenerationID string `json:"mediaGenerationId,omitempty"`
	RawBytes          string `json:"rawBytes,omitempty"`
}

type generateRequest struct {
	ClientContext      clientContext      `json:"clientContext"`
	ImageModelSettings imageModelSettings `json:"imageModelSettings"`
	Seed               int64              `json:"seed"`
	Prompt             string             `json:"prompt"`
	MediaCategory      string             `json:"mediaCategory"`
}

type recipeInput struct {
	Caption    string     `json:"caption"`
	MediaInput mediaInput `json:"mediaInput"`
}

type recipeRequest struct {
	ClientContext      clientContext      `json:"clientContext"`
	ImageModelSettings imageModelSettings `json:"imageModelSettings"`
	Seed               int64              `json:"seed"`
	UserInstruction    string             `json:"userInstruction"`
	RecipeMediaInputs  []recipeInput      `json:"recipeMediaInputs"`
}

type generateResponse struct {
	ImagePanels []struct {
		GeneratedImages []struct {
			EncodedImage string `json:"encodedImage"`
			Seed         int64  `json:"seed"`
		} `json:"generatedImages"`
	} `json:"imagePanels"`
}

type uploadRequest struct {
	ClientContext    clientContext `json:"clientContext"`
	UploadMediaInput mediaInput    `json:"uploadMediaInput"`
}

type uploadResponse struct {
	UploadMediaGenerationID string `json:"uploadMediaGenerationId"`
}

type captionInput struct {
	CandidatesCount int        `json:"candidatesCount"`
	MediaInput      mediaInput `json:"mediaInput"`
}

type captionRequest struct {
	ClientContext clientContext `json:"clientContext"`
	CaptionInput  captionInput  `json:"captionInput"`
}

type captionResponse struct {
	Candidates []struct {
		Output string `json:"output"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *LabsClient) GenerateFromText(ctx context.Context, prompt, aspectRatio string, cred *credential.Credential) Result {
	if cred == nil {
		return Failed("no credential")
	}

	req := generateRequest{
		ClientContext: c.newContext(),
		ImageModelSettings: imageModelSettings{
			ImageModel:  ModelText,
			AspectRatio: string(NormalizeAspectRatio(aspectRatio)),
		},
		Seed:          c.seed(),
		Prompt:        prompt,
		MediaCategory: "MEDIA_CATEGORY_BOARD",
	}

	var resp generateResponse
	if err := c.post(ctx, cred, pathGenerate, req, &resp); err != nil {
		slog.Debug("Text generation failed", "error", err)
		return Failed("generate image: %v", err)
	}
	return resp.result()
}

func (c *LabsClient) GenerateFromReferences(ctx context.Context, prompt, aspectRatio string, cred *credential.Credential, refs []StyleReference) Result {
	model := ReferenceModel(len(refs))
	if model == "" {
		return c.GenerateFromText(ctx, prompt, aspectRatio, cred)
	}
	if cred == nil {
		return Failed("no credential")
	}

	inputs := make([]recipeInput, 0, len(refs))
	for _, ref := range refs {
		inputs = append(inputs, recipeInput{
			Caption: ref.Caption,
			MediaInput: mediaInput{
				MediaCategory:     ref.Category.mediaCategory(),
				MediaGenerationID: ref.MediaID,
			},
		})
	}

	req := recipeRequest{
		ClientContext: c.newContext(),
		ImageModelSettings: imageModelSettings{
			ImageModel:  model,
			AspectRatio: string(NormalizeAspectRatio(aspectRatio)),
		},
		Seed:              c.seed(),
		UserInstruction:   prompt,
		RecipeMediaInputs: inputs,
	}

	var resp generateResponse
	if err := c.post(ctx, cred, pathRecipe, req, &resp); err != nil {
		slog.Debug("Reference generation failed", "model", model, "refs", len(refs), "error", err)
		return Failed("run image recipe: %v", err)
	}
	return resp.result()
}

// AnalyzeImage uploads the image and captions it concurrently. Only the
// upload decides success.
func (c *LabsClient) AnalyzeImage(ctx context.Context, image []byte, category Category, cred *credential.Credential) Analysis {
	if cred == nil {
		return Analysis{Error: "no credential"}
	}
	if len(image) == 0 {
		return Analysis{Error: "empty image"}
	}

	mimeType := http.DetectContentType(image)
	raw := dataURI(mimeType, image)

	var (
		mediaID    string
		caption    string
		captionErr error
	)
	// A failed upload cancels the caption; a failed caption never fails the group.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mediaID, err = c.upload(gctx, cred, raw, category)
		if err != nil {
			return fmt.Errorf("upload image: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		caption, captionErr = c.caption(gctx, cred, raw, category)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Analysis{Error: err.Error()}
	}

	if captionErr != nil {
		slog.Debug("Caption failed, continuing without caption", "error", captionErr)
		caption = ""
	}
	return Analysis{Success: true, MediaID: mediaID, Caption: caption, MIMEType: mimeType}
}

func (c *LabsClient) upload(ctx context.Context, cred *credential.Credential, raw string, category Category) (string, error) {
	req := uploadRequest{
		ClientContext: c.newContext(),
		UploadMediaInput: mediaInput{
			MediaCategory: category.mediaCategory(),
			RawBytes:      raw,
		},
	}

	var resp uploadResponse
	if err := c.post(ctx, cred, pathUpload, req, &resp); err != nil {
		return "", err
	}
	if resp.UploadMediaGenerationID == "" {
		return "", fmt.Errorf("upload returned no media id")
	}
	return resp.UploadMediaGenerationID, nil
}

func (c *LabsClient) caption(ctx context.Context, cred *credential.Credential, raw string, category Category) (string, error) {
	req := captionRequest{
		ClientContext: c.newContext(),
		CaptionInput: captionInput{
			CandidatesCount: 1,
			MediaInput: mediaInput{
				MediaCategory: category.mediaCategory(),
				RawBytes:      raw,
			},
		},
	}

	var resp captionResponse
	if err := c.post(ctx, cred, pathCaption, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("caption returned no candidates")
	}
	return strings.TrimSpace(resp.Candidates[0].Output), nil
}

func (c *LabsClient) newContext() clientContext {
	return clientContext{
		Tool:      workflowTool,
		SessionID: c.sessionID(),
	}
}

func (c *LabsClient) httpClient(cred *credential.Credential) *httputil.RetryClient {
	hc := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: cred.TokenSource(),
			Base:   c.transport,
		},
	}
	return httputil.NewRetryClient(hc, c.retry)
}

func (c *LabsClient) post(ctx context.Context, cred *credential.Credential, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient(cred).Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error.Message != "" {
			return fmt.Errorf("%s: %s", resp.Status, errResp.Error.Message)
		}
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (r generateResponse) result() Result {
	var images []string
	for _, panel := range r.ImagePanels {
		for _, img := range panel.GeneratedImages {
			if img.EncodedImage != "" {
				images = append(images, img.EncodedImage)
			}
		}
	}
	if len(images) == 0 {
		return Failed("response contained no images")
	}
	return Succeeded(images...)
}

func dataURI(mimeType string, image []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
}
