package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const buildTimeFormat = "20060102_150405"

// LocalStorage owns the output directory. Each build gets its own
// timestamped subdirectory whose files are created once and never rewritten.
type LocalStorage struct {
	outputDir string
}

func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{outputDir: outputDir}
}

func (s *LocalStorage) OutputDir() string {
	return s.outputDir
}

type BuildDir struct {
	Root string
	Slug string
}

func (s *LocalStorage) NewBuildDir(name string, now time.Time) (*BuildDir, error) {
	slug := Slug(name)
	root := filepath.Join(s.outputDir, fmt.Sprintf("%s_%s", now.Format(buildTimeFormat), slug))

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.Mkdir(root, 0755); err != nil {
		return nil, fmt.Errorf("create build directory: %w", err)
	}

	b := &BuildDir{Root: root, Slug: slug}
	for _, dir := range []string{b.BackgroundsDir(), b.SlidesDir()} {
		if err := os.Mkdir(dir, 0755); err != nil {
			return nil, fmt.Errorf("create build directory: %w", err)
		}
	}
	return b, nil
}

func (b *BuildDir) BackgroundsDir() string {
	return filepath.Join(b.Root, "backgrounds")
}

func (b *BuildDir) SlidesDir() string {
	return filepath.Join(b.Root, "slides")
}

func (b *BuildDir) DeckPath() string {
	return filepath.Join(b.Root, b.Slug+".pdf")
}

func (b *BuildDir) ThumbnailPath() string {
	return filepath.Join(b.Root, b.Slug+"_thumbnails.png")
}

// Save writes data under the build root.
func (b *BuildDir) Save(rel string, data []byte) (string, error) {
	path := filepath.Join(b.Root, rel)
	if err := WriteOnce(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ListBuilds returns build directories under the output dir, oldest first.
func (s *LocalStorage) ListBuilds() ([]string, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	var builds []string
	for _, entry := range entries {
		if !entry.IsDir() || !isBuildName(entry.Name()) {
			continue
		}
		builds = append(builds, filepath.Join(s.outputDir, entry.Name()))
	}
	sort.Strings(builds)
	return builds, nil
}

func isBuildName(name string) bool {
	if len(name) <= len(buildTimeFormat)+1 || name[len(buildTimeFormat)] != '_' {
		return false
	}
	_, err := time.Parse(buildTimeFormat, name[:len(buildTimeFormat)])
	return err == nil
}

func (s *LocalStorage) RemoveBuilds(builds []string) error {
	for _, b := range builds {
		if filepath.Dir(b) != filepath.Clean(s.outputDir) {
			return fmt.Errorf("refusing to remove %s outside %s", b, s.outputDir)
		}
		if err := os.RemoveAll(b); err != nil {
			return fmt.Errorf("remove %s: %w", b, err)
		}
	}
	return nil
}

// Fetch resolves a local reference. A directory expands to the images it
// contains; a missing path yields no files.
func (s *LocalStorage) Fetch(_ context.Context, ref string) ([]string, error) {
	info, err := os.Stat(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat reference: %w", err)
	}
	if !info.IsDir() {
		return []string{ref}, nil
	}

	entries, err := os.ReadDir(ref)
	if err != nil {
		return nil, fmt.Errorf("read reference directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && isImage(entry.Name()) {
			files = append(files, filepath.Join(ref, entry.Name()))
		}
	}
	return files, nil
}

var _ ReferenceFetcher = (*LocalStorage)(nil)

func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "gs://")
}
