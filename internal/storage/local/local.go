// Package local implements the local filesystem storage backend. This
// backend is intended for development and single-node deployments only — it
// does not support horizontal scaling (multiple registry instances would
// need access to the same filesystem, e.g., via NFS). For production, use a
// cloud storage backend.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/corevault-registry/corevault-registry/internal/config"
	"github.com/corevault-registry/corevault-registry/internal/storage"
)

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local, cfg.Server.BaseURL)
	})
}

// LocalStorage implements the Storage interface over a directory tree.
// Content-addressed keys like "artifacts/sha256/<hex>" map directly to
// nested directories under the base path.
type LocalStorage struct {
	basePath      string
	serveDirectly bool
	baseURL       string
}

// New creates a new local filesystem storage backend
func New(cfg *config.LocalStorageConfig, serverBaseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath:      cfg.BasePath,
		serveDirectly: cfg.ServeDirectly,
		baseURL:       serverBaseURL,
	}, nil
}

// fullPath resolves a storage key to an absolute filesystem path.
func (s *LocalStorage) fullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// Put stores an object under the base path, computing its digest while
// writing. A partial write is removed so concurrent readers never observe a
// truncated object at a content-addressed key.
func (s *LocalStorage) Put(ctx context.Context, key string, reader io.Reader, size int64) (*storage.PutResult, error) {
	fullPath := s.fullPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(file, hasher), reader)
	if err != nil {
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &storage.PutResult{
		Key:    key,
		Size:   written,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Get retrieves an object from the local filesystem
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(s.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes an object from the local filesystem
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath := s.fullPath(key)

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // already gone
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	// Try to remove empty parent directories (best effort)
	dir := filepath.Dir(fullPath)
	for dir != s.basePath {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}

	return nil
}

// SignedURL returns a URL for downloading the object.
// With ServeDirectly enabled this returns a URL served through the API;
// otherwise it returns a file:// URL for local access. The TTL is ignored
// because local paths cannot expire.
func (s *LocalStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("object not found: %s", key)
	}

	if s.serveDirectly {
		return fmt.Sprintf("%s/v1/objects/%s", s.baseURL, key), nil
	}

	return fmt.Sprintf("file://%s", s.fullPath(key)), nil
}

// Exists checks if an object exists at the specified key
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return true, nil
}

// Metadata retrieves object metadata without reading the content
func (s *LocalStorage) Metadata(ctx context.Context, key string) (*storage.ObjectMetadata, error) {
	stat, err := os.Stat(s.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &storage.ObjectMetadata{
		Key:          key,
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
	}, nil
}
