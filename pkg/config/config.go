package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath       = "config.yaml"
	defaultExpiryBuffer     = 5 * time.Minute
	defaultLoginURL         = "https://labs.google/fx/tools/whisk"
	defaultProvider         = ProviderLabs
	defaultAspectRatio      = "16:9"
	defaultTimeout          = 90 * time.Second
	defaultMaxRetries       = 2
	defaultInitialDelay     = time.Second
	defaultMaxDelay         = 8 * time.Second
	defaultMultiplier       = 2.0
	defaultGeminiModel      = "gemini-2.5-flash-image"
	defaultGeminiCaption    = "gemini-2.5-flash"
	defaultOutputDir        = "./output"
	defaultCacheDir         = "./.cache"
	defaultThumbnailColumns = 4
	defaultDeckWidth        = 960
	defaultDeckHeight       = 540
	defaultFallbackWidth    = 1920
	defaultFallbackHeight   = 1080
	defaultGroqModel        = "llama-3.3-70b-versatile"
	defaultGCSPrefix        = "decks"
)

const (
	ProviderLabs   = "labs"
	ProviderGemini = "gemini"
)

type Config struct {
	GeminiAPIKey      string
	GroqAPIKey        string
	CredentialSecret  string
	OAuthClientID     string
	OAuthClientSecret string

	Credential CredentialConfig `yaml:"credential"`
	ImageGen   ImageGenConfig   `yaml:"imagegen"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Deck       DeckConfig       `yaml:"deck"`
	Fallback   FallbackConfig   `yaml:"fallback"`
	Groq       GroqConfig       `yaml:"groq"`
	GCS        GCSConfig        `yaml:"gcs"`
}

type CredentialConfig struct {
	Path         string        `yaml:"path"`
	Secret       string        `yaml:"secret"`
	ExpiryBuffer time.Duration `yaml:"expiry_buffer"`
	LoginURL     string        `yaml:"login_url"`
}

type ImageGenConfig struct {
	Provider    string        `yaml:"provider"` // "labs" or "gemini"
	BaseURL     string        `yaml:"base_url"`
	AspectRatio string        `yaml:"aspect_ratio"`
	Timeout     time.Duration `yaml:"timeout"`
	Retry       RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries   *int          `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// Retries returns the configured retry count. An explicit 0 disables retries.
func (r RetryConfig) Retries() int {
	if r.MaxRetries == nil {
		return defaultMaxRetries
	}
	return max(*r.MaxRetries, 0)
}

type GeminiConfig struct {
	Model               string `yaml:"model"`
	ReferenceModel      string `yaml:"reference_model"`
	MultiReferenceModel string `yaml:"multi_reference_model"`
	CaptionModel        string `yaml:"caption_model"`
}

type DeckConfig struct {
	OutputDir        string `yaml:"output_dir"`
	CacheDir         string `yaml:"cache_dir"`
	ThumbnailColumns int    `yaml:"thumbnail_columns"`
	Width            int    `yaml:"width"`
	Height           int    `yaml:"height"`
	PdftoppmPath     string `yaml:"pdftoppm_path"`
}

type FallbackConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type GroqConfig struct {
	Model       string `yaml:"model"`
	RefineStyle bool   `yaml:"refine_style"`
}

type GCSConfig struct {
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Publish bool   `yaml:"publish"`
}

func Load(_ context.Context) (*Config, error) {
	return LoadFrom(defaultConfigPath)
}

func LoadFrom(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GroqAPIKey:       os.Getenv("GROQ_API_KEY"),
		CredentialSecret: os.Getenv("DECKCRAFT_CREDENTIAL_SECRET"),

		OAuthClientID:     os.Getenv("DECKCRAFT_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("DECKCRAFT_CLIENT_SECRET"),
	}

	if err := loadYAMLConfig(cfg, path); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAMLConfig(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Debug("No config file found, using defaults", "path", path)
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.ImageGen.Provider {
	case ProviderLabs, ProviderGemini:
	default:
		return fmt.Errorf("unknown imagegen provider %q", c.ImageGen.Provider)
	}
	if c.GCS.Publish && c.GCS.Bucket == "" {
		return fmt.Errorf("gcs.publish requires gcs.bucket")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	applyCredentialDefaults(cfg)
	applyImageGenDefaults(cfg)
	applyGeminiDefaults(cfg)
	applyDeckDefaults(cfg)
	applyFallbackDefaults(cfg)
	applyGroqDefaults(cfg)
	applyGCSDefaults(cfg)
}

func applyCredentialDefaults(cfg *Config) {
	if cfg.Credential.Secret == "" {
		cfg.Credential.Secret = cfg.CredentialSecret
	}
	if cfg.Credential.ExpiryBuffer == 0 {
		cfg.Credential.ExpiryBuffer = defaultExpiryBuffer
	}
	if cfg.Credential.LoginURL == "" {
		cfg.Credential.LoginURL = defaultLoginURL
	}
}

func applyImageGenDefaults(cfg *Config) {
	if cfg.ImageGen.Provider == "" {
		cfg.ImageGen.Provider = defaultProvider
	}
	if cfg.ImageGen.AspectRatio == "" {
		cfg.ImageGen.AspectRatio = defaultAspectRatio
	}
	if cfg.ImageGen.Timeout == 0 {
		cfg.ImageGen.Timeout = defaultTimeout
	}
	if cfg.ImageGen.Retry.MaxRetries == nil {
		n := defaultMaxRetries
		cfg.ImageGen.Retry.MaxRetries = &n
	}
	if cfg.ImageGen.Retry.InitialDelay == 0 {
		cfg.ImageGen.Retry.InitialDelay = defaultInitialDelay
	}
	if cfg.ImageGen.Retry.MaxDelay == 0 {
		cfg.ImageGen.Retry.MaxDelay = defaultMaxDelay
	}
	if cfg.ImageGen.Retry.Multiplier == 0 {
		cfg.ImageGen.Retry.Multiplier = defaultMultiplier
	}
}

func applyGeminiDefaults(cfg *Config) {
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = defaultGeminiModel
	}
	if cfg.Gemini.CaptionModel == "" {
		cfg.Gemini.CaptionModel = defaultGeminiCaption
	}
}

func applyDeckDefaults(cfg *Config) {
	if cfg.Deck.OutputDir == "" {
		cfg.Deck.OutputDir = defaultOutputDir
	}
	if cfg.Deck.CacheDir == "" {
		cfg.Deck.CacheDir = defaultCacheDir
	}
	if cfg.Deck.ThumbnailColumns == 0 {
		cfg.Deck.ThumbnailColumns = defaultThumbnailColumns
	}
	if cfg.Deck.Width == 0 {
		cfg.Deck.Width = defaultDeckWidth
	}
	if cfg.Deck.Height == 0 {
		cfg.Deck.Height = defaultDeckHeight
	}
}

func applyFallbackDefaults(cfg *Config) {
	if cfg.Fallback.Width == 0 {
		cfg.Fallback.Width = defaultFallbackWidth
	}
	if cfg.Fallback.Height == 0 {
		cfg.Fallback.Height = defaultFallbackHeight
	}
}

func applyGroqDefaults(cfg *Config) {
	if cfg.Groq.Model == "" {
		cfg.Groq.Model = defaultGroqModel
	}
}

func applyGCSDefaults(cfg *Config) {
	if cfg.GCS.Prefix == "" {
		cfg.GCS.Prefix = defaultGCSPrefix
	}
}
