package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"deckcraft/internal/credential"
)

type Category string

const (
	CategoryStyle   Category = "style"
	CategorySubject Category = "subject"
	CategoryScene   Category = "scene"
)

func (c Category) mediaCategory() string {
	switch c {
	case CategorySubject:
		return "MEDIA_CATEGORY_SUBJECT"
	case CategoryScene:
		return "MEDIA_CATEGORY_SCENE"
	default:
		return "MEDIA_CATEGORY_STYLE"
	}
}

// StyleReference is an uploaded and captioned image that later generation
// calls can be conditioned on.
type StyleReference struct {
	Category Category
	MediaID  string
	Caption  string
	MIMEType string
}

// Result is the outcome of a generation call. Images hold base64 encoded
// image data and are only meaningful when Success is true.
type Result struct {
	Success bool
	Images  []string
	Error   string
}

func Succeeded(images ...string) Result {
	return Result{Success: true, Images: images}
}

func Failed(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Image decodes the first returned image.
func (r Result) Image() ([]byte, error) {
	if !r.Success {
		return nil, fmt.Errorf("generation failed: %s", r.Error)
	}
	if len(r.Images) == 0 {
		return nil, fmt.Errorf("generation returned no images")
	}
	encoded := r.Images[0]
	if i := strings.Index(encoded, ";base64,"); i >= 0 {
		encoded = encoded[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return data, nil
}

// Analysis is the outcome of an upload plus caption round trip. It succeeds
// whenever the upload succeeds; a failed caption leaves Caption empty.
type Analysis struct {
	Success  bool
	MediaID  string
	Caption  string
	MIMEType string
	Error    string
}

func (a Analysis) Reference(category Category) StyleReference {
	return StyleReference{
		Category: category,
		MediaID:  a.MediaID,
		Caption:  a.Caption,
		MIMEType: a.MIMEType,
	}
}

// Generator is the remote image service. Expected failures are reported
// through the returned values, never as panics or errors.
type Generator interface {
	GenerateFromText(ctx context.Context, prompt, aspectRatio string, cred *credential.Credential) Result
	GenerateFromReferences(ctx context.Context, prompt, aspectRatio string, cred *credential.Credential, refs []StyleReference) Result
	AnalyzeImage(ctx context.Context, image []byte, category Category, cred *credential.Credential) Analysis
}
