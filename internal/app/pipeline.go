package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"deckcraft/internal/assemble"
	"deckcraft/internal/deck"
	"deckcraft/internal/render"
	"deckcraft/internal/storage"
	"deckcraft/internal/style"
)

type Pipeline struct {
	service *Service
	now     func() time.Time
}

type BuildRequest struct {
	Deck *deck.Deck
}

type BuildResult struct {
	Name          string
	Dir           string
	Style         string
	Backgrounds   style.BackgroundSet
	Slides        []string
	Skipped       []int
	DeckPath      string
	ThumbnailPath string
	Placeholders  []assemble.Placeholder
	State         State
}

type renderedSlide struct {
	index  int
	markup string
}

func NewPipeline(service *Service) *Pipeline {
	return &Pipeline{service: service, now: time.Now}
}

// Build runs backgrounds, markup, assembly and thumbnails in that order.
// On failure the returned result still describes the build directory and the
// state reached.
func (p *Pipeline) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	d := req.Deck
	if d == nil {
		return nil, fmt.Errorf("no deck")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	sess, err := newSession(p.service.storage, d.Name, p.now())
	if err != nil {
		return nil, err
	}
	result := &BuildResult{Name: d.Name, Dir: sess.dir.Root, Style: d.Style}
	slog.Info("Building deck", "name", d.Name, "slides", len(d.Slides), "dir", sess.dir.Root)

	refs := p.resolveReferences(ctx, d.Refs)
	result.Style = p.refineStyle(ctx, d)

	slog.Info("Generating backgrounds...")
	set, err := p.backgrounds(ctx, sess, result.Style, d.Slides, refs)
	if err != nil {
		return result, err
	}
	result.Backgrounds = set
	sess.advance(StateBackgroundsReady)
	result.State = sess.state

	slog.Info("Rendering slides...")
	slides, err := p.renderSlides(sess, d.Slides, set, result)
	if err != nil {
		return result, err
	}
	sess.advance(StateMarkupReady)
	result.State = sess.state

	slog.Info("Assembling deck...", "pages", len(slides))
	if err := p.assemble(sess, slides, result); err != nil {
		return result, err
	}
	sess.advance(StateAssembled)
	result.State = sess.state

	result.ThumbnailPath = p.thumbnails(ctx, sess, result.DeckPath)

	sess.advance(StateDone)
	result.State = sess.state
	slog.Info("Deck built", "path", result.DeckPath, "fallbacks", set.Fallbacks(), "skipped", len(result.Skipped))
	return result, nil
}

// Publish uploads the deck and its thumbnail sheet to remote storage.
func (p *Pipeline) Publish(ctx context.Context, result *BuildResult) ([]string, error) {
	if p.service.remote == nil {
		return nil, fmt.Errorf("remote storage is not configured")
	}
	if result == nil || result.State != StateDone {
		return nil, fmt.Errorf("deck is not complete")
	}

	build := filepath.Base(result.Dir)
	artifacts := []string{result.DeckPath}
	if result.ThumbnailPath != "" {
		artifacts = append(artifacts, result.ThumbnailPath)
	}

	var urls []string
	for _, artifact := range artifacts {
		url, err := p.service.remote.Publish(ctx, build, artifact)
		if err != nil {
			return urls, fmt.Errorf("publish %s: %w", filepath.Base(artifact), err)
		}
		slog.Info("Published", "url", url)
		urls = append(urls, url)
	}
	return urls, nil
}

func (p *Pipeline) resolveReferences(ctx context.Context, refs []string) []string {
	var paths []string
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}

		var fetcher storage.ReferenceFetcher = p.service.storage
		if storage.IsRemote(ref) {
			if p.service.remote == nil {
				slog.Warn("Skipping remote reference, GCS is not configured", "ref", ref)
				continue
			}
			fetcher = p.service.remote
		}

		files, err := fetcher.Fetch(ctx, ref)
		if err != nil {
			slog.Warn("Skipping reference", "ref", ref, "error", err)
			continue
		}
		if len(files) == 0 {
			slog.Warn("Reference not found", "ref", ref)
		}
		paths = append(paths, files...)
	}
	return paths
}

func (p *Pipeline) refineStyle(ctx context.Context, d *deck.Deck) string {
	if p.service.refiner == nil {
		return d.Style
	}
	refined, err := p.service.refiner.RefineStyle(ctx, d)
	if err != nil || strings.TrimSpace(refined) == "" {
		slog.Warn("Style refinement failed, using original style", "error", err)
		return d.Style
	}
	slog.Debug("Style refined", "style", refined)
	return refined
}

func (p *Pipeline) backgrounds(ctx context.Context, sess *session, styleDesc string, slides []deck.Slide, refs []string) (style.BackgroundSet, error) {
	dir := sess.dir.BackgroundsDir()

	set, err := p.service.backgrounds.Generate(ctx, style.Request{
		Style:  styleDesc,
		Slides: slides,
		Refs:   refs,
		Dir:    dir,
	})
	if errors.Is(err, style.ErrUnavailable) {
		slog.Warn("Remote backgrounds unavailable, using fallbacks for every slide")
		set, err = style.FallbackAll(p.service.newFallback(dir), slides)
	}
	if err != nil {
		return nil, fmt.Errorf("generate backgrounds: %w", err)
	}
	if len(set) != len(slides) {
		return nil, fmt.Errorf("generate backgrounds: got %d for %d slides", len(set), len(slides))
	}
	return set, nil
}

func (p *Pipeline) renderSlides(sess *session, slides []deck.Slide, set style.BackgroundSet, result *BuildResult) ([]renderedSlide, error) {
	var rendered []renderedSlide
	for i, slide := range slides {
		if !p.service.renderer.Supports(slide.Type) {
			slog.Warn("Skipping slide with unknown type", "slide", i, "type", slide.Type)
			result.Skipped = append(result.Skipped, i)
			continue
		}

		markup, err := p.service.renderer.Render(i, slide, set[i].Path)
		if errors.Is(err, render.ErrUnknownType) {
			slog.Warn("Skipping slide with unknown type", "slide", i, "type", slide.Type)
			result.Skipped = append(result.Skipped, i)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("render slide %d: %w", i, err)
		}

		path, err := sess.dir.Save(filepath.Join("slides", fmt.Sprintf("slide_%02d.html", i)), []byte(markup))
		if err != nil {
			return nil, fmt.Errorf("save slide %d: %w", i, err)
		}
		result.Slides = append(result.Slides, path)
		rendered = append(rendered, renderedSlide{index: i, markup: markup})
	}

	if len(rendered) == 0 {
		return nil, fmt.Errorf("no slides could be rendered")
	}
	return rendered, nil
}

func (p *Pipeline) assemble(sess *session, slides []renderedSlide, result *BuildResult) error {
	doc, err := p.service.assembler.Open(sess.dir.DeckPath())
	if err != nil {
		return fmt.Errorf("open deck: %w", err)
	}

	for _, s := range slides {
		placeholders, err := doc.AppendSlide(s.markup)
		if err != nil {
			return fmt.Errorf("assemble slide %d: %w", s.index, err)
		}
		result.Placeholders = append(result.Placeholders, placeholders...)
	}

	path, err := doc.Close()
	if err != nil {
		return fmt.Errorf("close deck: %w", err)
	}
	result.DeckPath = path
	return nil
}

// thumbnails never fails the build; an empty path means no sheet was made.
func (p *Pipeline) thumbnails(ctx context.Context, sess *session, deckPath string) string {
	if p.service.thumbnails == nil {
		return ""
	}

	columns := defaultThumbnailColumns
	if cfg := p.service.cfg; cfg != nil && cfg.Deck.ThumbnailColumns > 0 {
		columns = cfg.Deck.ThumbnailColumns
	}

	path, err := p.service.thumbnails.Generate(ctx, deckPath, columns, sess.dir.ThumbnailPath())
	if err != nil {
		slog.Warn("Thumbnail generation failed", "error", err)
		return ""
	}
	return path
}

const defaultThumbnailColumns = 4
