package style

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"

	"deckcraft/internal/credential"
	"deckcraft/internal/deck"
	"deckcraft/internal/fallback"
	"deckcraft/internal/imagegen"
	"deckcraft/internal/storage"
)

// ErrUnavailable means remote generation cannot produce a consistent deck:
// no usable credential or the anchor slide failed. Callers fall back for
// every slide.
var ErrUnavailable = errors.New("image generation unavailable")

type Source int

const (
	SourceGenerated Source = iota
	SourceFallback
)

func (s Source) String() string {
	if s == SourceFallback {
		return "fallback"
	}
	return "generated"
}

type Background struct {
	Path   string
	Source Source
}

// BackgroundSet holds one background per slide, index-aligned with the deck.
type BackgroundSet []Background

func (s BackgroundSet) Paths() []string {
	paths := make([]string, len(s))
	for i, b := range s {
		paths[i] = b.Path
	}
	return paths
}

func (s BackgroundSet) Fallbacks() int {
	n := 0
	for _, b := range s {
		if b.Source == SourceFallback {
			n++
		}
	}
	return n
}

type Fallback interface {
	Generate(slideType deck.SlideType, index int) (string, error)
}

type PromptBuilder interface {
	RenderBackground(style, slideType string) (string, error)
}

type Options struct {
	Client      imagegen.Generator
	Credentials credential.Provider
	Prompts     PromptBuilder
	AspectRatio string
	// NewFallback builds the fallback generator for a background directory.
	NewFallback func(dir string) Fallback
}

type Request struct {
	Style  string
	Slides []deck.Slide
	// Refs are local image paths used as style references.
	Refs []string
	Dir  string
}

// Orchestrator generates a deck's backgrounds so that the first slide's
// style carries through the rest.
type Orchestrator struct {
	client      imagegen.Generator
	creds       credential.Provider
	prompts     PromptBuilder
	aspectRatio string
	newFallback func(dir string) Fallback
}

func New(opts Options) *Orchestrator {
	if opts.AspectRatio == "" {
		opts.AspectRatio = "16:9"
	}
	if opts.NewFallback == nil {
		opts.NewFallback = func(dir string) Fallback {
			return fallback.New(dir, 0, 0)
		}
	}
	return &Orchestrator{
		client:      opts.Client,
		creds:       opts.Credentials,
		prompts:     opts.Prompts,
		aspectRatio: opts.AspectRatio,
		newFallback: opts.NewFallback,
	}
}

// Generate returns exactly len(req.Slides) backgrounds or ErrUnavailable.
// Other errors are local write failures.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (BackgroundSet, error) {
	if len(req.Slides) == 0 {
		return nil, fmt.Errorf("deck has no slides")
	}

	cred, err := o.creds.Load(ctx)
	if err != nil {
		slog.Warn("Credential provider failed", "error", err)
		return nil, ErrUnavailable
	}
	if cred == nil {
		slog.Info("No usable credential, skipping remote generation")
		return nil, ErrUnavailable
	}

	userRefs := o.ingestReferences(ctx, cred, req.Refs)

	anchor, refs, err := o.anchor(ctx, cred, req, userRefs)
	if err != nil {
		return nil, err
	}

	set := make(BackgroundSet, 0, len(req.Slides))
	set = append(set, anchor)
	return o.fold(ctx, cred, req, refs, set)
}

func (o *Orchestrator) ingestReferences(ctx context.Context, cred *credential.Credential, paths []string) []imagegen.StyleReference {
	var refs []imagegen.StyleReference
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Skipping unreadable reference", "path", path, "error", err)
			continue
		}

		a := o.client.AnalyzeImage(ctx, data, imagegen.CategoryStyle, cred)
		if !a.Success {
			slog.Warn("Skipping reference that failed to upload", "path", path, "error", a.Error)
			continue
		}
		refs = append(refs, a.Reference(imagegen.CategoryStyle))
	}
	slog.Debug("References ingested", "requested", len(paths), "usable", len(refs))
	return refs
}

// anchor generates slide 0 and promotes it to a consistency reference. Any
// generation failure here makes the whole deck unavailable.
func (o *Orchestrator) anchor(ctx context.Context, cred *credential.Credential, req Request, userRefs []imagegen.StyleReference) (Background, []imagegen.StyleReference, error) {
	slide := req.Slides[0]

	data, ok := o.generate(ctx, cred, req.Style, slide.Type, userRefs)
	if !ok {
		slog.Warn("Anchor slide generation failed, falling back for whole deck")
		return Background{}, nil, ErrUnavailable
	}

	path, err := saveImage(req.Dir, 0, data)
	if err != nil {
		return Background{}, nil, err
	}

	refs := slices.Clone(userRefs)
	a := o.client.AnalyzeImage(ctx, data, imagegen.CategoryStyle, cred)
	if a.Success {
		refs = append(refs, a.Reference(imagegen.CategoryStyle))
	} else {
		slog.Warn("Anchor upload failed, continuing with user references only", "error", a.Error)
	}

	slog.Info("Anchor background ready", "path", path, "consistency_refs", len(refs))
	return Background{Path: path, Source: SourceGenerated}, refs, nil
}

// fold generates slides 1..n-1 in order. A failed slide gets a fallback.
func (o *Orchestrator) fold(ctx context.Context, cred *credential.Credential, req Request, refs []imagegen.StyleReference, set BackgroundSet) (BackgroundSet, error) {
	fb := o.newFallback(req.Dir)

	for i := 1; i < len(req.Slides); i++ {
		slide := req.Slides[i]

		if data, ok := o.generate(ctx, cred, req.Style, slide.Type, refs); ok {
			path, err := saveImage(req.Dir, i, data)
			if err != nil {
				return nil, err
			}
			slog.Debug("Background generated", "slide", i, "type", slide.Type)
			set = append(set, Background{Path: path, Source: SourceGenerated})
			continue
		}

		path, err := fb.Generate(slide.Type, i)
		if err != nil {
			return nil, fmt.Errorf("fallback for slide %d: %w", i, err)
		}
		slog.Warn("Background generation failed, using fallback", "slide", i, "type", slide.Type)
		set = append(set, Background{Path: path, Source: SourceFallback})
	}
	return set, nil
}

func (o *Orchestrator) generate(ctx context.Context, cred *credential.Credential, style string, slideType deck.SlideType, refs []imagegen.StyleReference) ([]byte, bool) {
	prompt, err := o.prompts.RenderBackground(style, string(slideType))
	if err != nil {
		slog.Warn("Failed to build background prompt", "type", slideType, "error", err)
		return nil, false
	}

	var res imagegen.Result
	if len(refs) > 0 {
		res = o.client.GenerateFromReferences(ctx, prompt, o.aspectRatio, cred, refs)
	} else {
		res = o.client.GenerateFromText(ctx, prompt, o.aspectRatio, cred)
	}
	if !res.Success {
		slog.Debug("Generation failed", "type", slideType, "refs", len(refs), "error", res.Error)
		return nil, false
	}

	data, err := res.Image()
	if err != nil {
		slog.Debug("Generated image unusable", "type", slideType, "error", err)
		return nil, false
	}
	return data, true
}

// FallbackAll builds a fallback background for every slide.
func FallbackAll(fb Fallback, slides []deck.Slide) (BackgroundSet, error) {
	set := make(BackgroundSet, 0, len(slides))
	for i, slide := range slides {
		path, err := fb.Generate(slide.Type, i)
		if err != nil {
			return nil, fmt.Errorf("fallback for slide %d: %w", i, err)
		}
		set = append(set, Background{Path: path, Source: SourceFallback})
	}
	return set, nil
}

func saveImage(dir string, index int, data []byte) (string, error) {
	ext := ".png"
	if http.DetectContentType(data) == "image/jpeg" {
		ext = ".jpg"
	}
	path := filepath.Join(dir, fmt.Sprintf("bg_%d%s", index, ext))
	if err := storage.WriteOnce(path, data); err != nil {
		return "", fmt.Errorf("save background %d: %w", index, err)
	}
	return path, nil
}
