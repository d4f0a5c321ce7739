package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStorage downloads gs:// references into a local cache and publishes
// finished decks to a bucket.
type GCSStorage struct {
	client        *storage.Client
	bucket        string
	prefix        string
	localCacheDir string
}

func NewGCSStorage(ctx context.Context, bucket, prefix, localCacheDir string) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client:        client,
		bucket:        bucket,
		prefix:        strings.Trim(prefix, "/"),
		localCacheDir: localCacheDir,
	}, nil
}

func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// ParseGCSPath splits gs://bucket/object into its parts.
func ParseGCSPath(ref string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(ref, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// path: %s", ref)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %s", ref)
	}
	return bucket, object, nil
}

// Fetch downloads the object named by ref, or every image under it when ref
// ends with a slash. Cached files are reused.
func (s *GCSStorage) Fetch(ctx context.Context, ref string) ([]string, error) {
	bucket, object, err := ParseGCSPath(ref)
	if err != nil {
		return nil, err
	}

	objects := []string{object}
	if object == "" || strings.HasSuffix(object, "/") {
		objects, err = s.listImages(ctx, bucket, object)
		if err != nil {
			return nil, err
		}
	}

	var paths []string
	for _, obj := range objects {
		localPath := filepath.Join(s.localCacheDir, bucket, filepath.FromSlash(obj))
		if _, err := os.Stat(localPath); err != nil {
			if err := s.downloadFile(ctx, bucket, obj, localPath); err != nil {
				return nil, fmt.Errorf("failed to download reference: %w", err)
			}
		}
		paths = append(paths, localPath)
	}
	return paths, nil
}

func (s *GCSStorage) listImages(ctx context.Context, bucket, prefix string) ([]string, error) {
	query := &storage.Query{Prefix: prefix}

	var names []string
	it := s.client.Bucket(bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		if isImage(attrs.Name) {
			names = append(names, attrs.Name)
		}
	}
	return names, nil
}

func (s *GCSStorage) downloadFile(ctx context.Context, bucket, remotePath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	r, err := s.client.Bucket(bucket).Object(remotePath).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to create reader: %w", err)
	}
	defer func() { _ = r.Close() }()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}

	return nil
}

// Publish uploads localPath to <prefix>/<build>/<basename>.
func (s *GCSStorage) Publish(ctx context.Context, build, localPath string) (string, error) {
	object := path.Join(s.prefix, build, filepath.Base(localPath))

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType(localPath)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".html":
		return "text/html"
	}
	return "application/octet-stream"
}

var (
	_ ReferenceFetcher = (*GCSStorage)(nil)
	_ Publisher        = (*GCSStorage)(nil)
)
