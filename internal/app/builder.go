package app

import (
	"context"
	"log/slog"

	"deckcraft/internal/assemble"
	"deckcraft/internal/credential"
	"deckcraft/internal/fallback"
	"deckcraft/internal/groq"
	"deckcraft/internal/imagegen"
	"deckcraft/internal/imagegen/gemini"
	"deckcraft/internal/render"
	"deckcraft/internal/storage"
	"deckcraft/internal/style"
	"deckcraft/internal/thumbnail"
	"deckcraft/pkg/config"
	"deckcraft/pkg/httputil"
	"deckcraft/pkg/prompts"
)

func BuildService(ctx context.Context, cfg *config.Config) (*Service, error) {
	p, err := prompts.Load()
	if err != nil {
		return nil, err
	}

	creds, err := NewCredentialProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	newFallback := func(dir string) style.Fallback {
		return fallback.New(dir, cfg.Fallback.Width, cfg.Fallback.Height)
	}

	orchestrator := style.New(style.Options{
		Client:      newImageGenerator(cfg),
		Credentials: creds,
		Prompts:     p,
		AspectRatio: cfg.ImageGen.AspectRatio,
		NewFallback: newFallback,
	})

	var refiner StyleRefiner
	if cfg.Groq.RefineStyle {
		if cfg.GroqAPIKey == "" {
			slog.Warn("Style refinement enabled but GROQ_API_KEY is not set")
		} else {
			client, err := groq.NewClient(cfg.GroqAPIKey, cfg.Groq.Model, p)
			if err != nil {
				return nil, err
			}
			refiner = client
		}
	}

	var remote RemoteStorage
	if cfg.GCS.Bucket != "" {
		gcs, err := storage.NewGCSStorage(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix, cfg.Deck.CacheDir)
		if err != nil {
			return nil, err
		}
		remote = gcs
	}

	return NewService(ServiceOptions{
		Config:      cfg,
		Credentials: creds,
		Backgrounds: orchestrator,
		NewFallback: newFallback,
		Renderer:    render.New(cfg.Deck.Width, cfg.Deck.Height),
		Assembler:   pdfAssembler{pdf: assemble.NewPDFAssembler()},
		Thumbnails:  thumbnail.New(thumbnail.Options{PdftoppmPath: cfg.Deck.PdftoppmPath}),
		Refiner:     refiner,
		Storage:     storage.NewLocalStorage(cfg.Deck.OutputDir),
		Remote:      remote,
	}), nil
}

// NewCredentialProvider reads from Secret Manager when a secret is configured
// and from the local credential file otherwise.
func NewCredentialProvider(ctx context.Context, cfg *config.Config) (credential.Provider, error) {
	if cfg.Credential.Secret != "" {
		provider, err := credential.NewSecretProvider(ctx, cfg.Credential.Secret, cfg.Credential.ExpiryBuffer)
		if err != nil {
			return nil, err
		}
		return provider, nil
	}
	return credential.NewFileProvider(cfg.Credential.Path, cfg.Credential.ExpiryBuffer), nil
}

func newImageGenerator(cfg *config.Config) imagegen.Generator {
	if cfg.ImageGen.Provider == config.ProviderGemini {
		return gemini.NewClient(gemini.Options{
			APIKey:              cfg.GeminiAPIKey,
			Model:               cfg.Gemini.Model,
			ReferenceModel:      cfg.Gemini.ReferenceModel,
			MultiReferenceModel: cfg.Gemini.MultiReferenceModel,
			CaptionModel:        cfg.Gemini.CaptionModel,
		})
	}

	retry := cfg.ImageGen.Retry
	return imagegen.NewLabsClient(imagegen.LabsOptions{
		BaseURL: cfg.ImageGen.BaseURL,
		Timeout: cfg.ImageGen.Timeout,
		Retry: httputil.RetryConfig{
			MaxRetries:   retry.Retries(),
			InitialDelay: retry.InitialDelay,
			MaxDelay:     retry.MaxDelay,
			Multiplier:   retry.Multiplier,
		},
	})
}
