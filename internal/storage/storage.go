package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ReferenceFetcher resolves a reference location to local file paths.
type ReferenceFetcher interface {
	Fetch(ctx context.Context, ref string) ([]string, error)
}

// Publisher copies a finished artifact to remote storage and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, build, localPath string) (string, error)
}

var ErrExists = errors.New("file already exists")

// WriteOnce creates path with data, failing with ErrExists if it is already
// present. Parent directories are created as needed.
func WriteOnce(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write file: %w", err)
	}
	return f.Close()
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func Slug(name string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "deck"
	}
	return s
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return true
	}
	return false
}
