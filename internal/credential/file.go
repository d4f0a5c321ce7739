package credential

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const defaultFileName = "credentials.json"

type FileProvider struct {
	path   string
	buffer time.Duration
	now    func() time.Time
}

var _ Provider = (*FileProvider)(nil)

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".deckcraft", defaultFileName)
	}
	return filepath.Join(home, ".deckcraft", defaultFileName)
}

func NewFileProvider(path string, buffer time.Duration) *FileProvider {
	if path == "" {
		path = DefaultPath()
	}
	if buffer <= 0 {
		buffer = DefaultExpiryBuffer
	}
	return &FileProvider{
		path:   path,
		buffer: buffer,
		now:    time.Now,
	}
}

func (p *FileProvider) Path() string {
	return p.path
}

func (p *FileProvider) Load(_ context.Context) (*Credential, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No credential file", "path", p.path)
		} else {
			slog.Warn("Failed to read credential file", "path", p.path, "error", err)
		}
		return nil, nil
	}

	cred, err := parse(data)
	if err != nil {
		slog.Warn("Ignoring invalid credential file", "path", p.path, "error", err)
		return nil, nil
	}

	if !cred.Usable(p.now(), p.buffer) {
		slog.Info("Credential expired or expiring soon", "expires_at", cred.ExpiresAt)
		return nil, nil
	}

	return cred, nil
}
