package app

import (
	"context"
	"io"

	"deckcraft/internal/assemble"
	"deckcraft/internal/credential"
	"deckcraft/internal/deck"
	"deckcraft/internal/storage"
	"deckcraft/internal/style"
	"deckcraft/pkg/config"
)

type BackgroundGenerator interface {
	Generate(ctx context.Context, req style.Request) (style.BackgroundSet, error)
}

type SlideRenderer interface {
	Supports(t deck.SlideType) bool
	Render(index int, slide deck.Slide, background string) (string, error)
}

// Document is an open presentation that accepts slides in order.
type Document interface {
	AppendSlide(markup string) ([]assemble.Placeholder, error)
	Close() (string, error)
}

type Assembler interface {
	Open(path string) (Document, error)
}

type Thumbnailer interface {
	Generate(ctx context.Context, pdfPath string, columns int, outPath string) (string, error)
}

type StyleRefiner interface {
	RefineStyle(ctx context.Context, d *deck.Deck) (string, error)
}

// RemoteStorage fetches gs:// references and publishes finished builds.
type RemoteStorage interface {
	storage.ReferenceFetcher
	storage.Publisher
}

type Service struct {
	cfg         *config.Config
	credentials credential.Provider
	backgrounds BackgroundGenerator
	newFallback func(dir string) style.Fallback
	renderer    SlideRenderer
	assembler   Assembler
	thumbnails  Thumbnailer
	refiner     StyleRefiner
	storage     *storage.LocalStorage
	remote      RemoteStorage
}

type ServiceOptions struct {
	Config      *config.Config
	Credentials credential.Provider
	Backgrounds BackgroundGenerator
	NewFallback func(dir string) style.Fallback
	Renderer    SlideRenderer
	Assembler   Assembler
	Thumbnails  Thumbnailer
	Refiner     StyleRefiner
	Storage     *storage.LocalStorage
	Remote      RemoteStorage
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		cfg:         opts.Config,
		credentials: opts.Credentials,
		backgrounds: opts.Backgrounds,
		newFallback: opts.NewFallback,
		renderer:    opts.Renderer,
		assembler:   opts.Assembler,
		thumbnails:  opts.Thumbnails,
		refiner:     opts.Refiner,
		storage:     opts.Storage,
		remote:      opts.Remote,
	}
}

func (s *Service) Config() *config.Config {
	return s.cfg
}

func (s *Service) Credentials() credential.Provider {
	return s.credentials
}

func (s *Service) Storage() *storage.LocalStorage {
	return s.storage
}

func (s *Service) Remote() RemoteStorage {
	return s.remote
}

func (s *Service) Close() error {
	if c, ok := s.remote.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type pdfAssembler struct {
	pdf *assemble.PDFAssembler
}

func (a pdfAssembler) Open(path string) (Document, error) {
	doc, err := a.pdf.Open(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
