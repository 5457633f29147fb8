package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/corevault-registry/corevault-registry/internal/config"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := New(&config.LocalStorageConfig{
		BasePath:      t.TempDir(),
		ServeDirectly: true,
	}, "http://localhost:8080")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func digestKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return "artifacts/sha256/" + hex.EncodeToString(sum[:])
}

func TestPut(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	const content = "core bundle bytes"
	key := digestKey(content)

	result, err := s.Put(ctx, key, strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if result.Key != key {
		t.Errorf("result.Key = %q, want %q", result.Key, key)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("result.Size = %d, want %d", result.Size, len(content))
	}

	sum := sha256.Sum256([]byte(content))
	if result.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("result.SHA256 = %q, want computed digest", result.SHA256)
	}
}

func TestPutSameKeyTwiceIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	const content = "identical bytes"
	key := digestKey(content)

	if _, err := s.Put(ctx, key, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("first Put() error: %v", err)
	}
	if _, err := s.Put(ctx, key, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("second Put() error: %v", err)
	}

	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != content {
		t.Errorf("content after double Put = %q, want %q", data, content)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStorage(t)

	if _, err := s.Get(context.Background(), "artifacts/sha256/ffff"); err == nil {
		t.Error("Get() = nil error for missing object")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	const content = "to be deleted"
	key := digestKey(content)
	if _, err := s.Put(ctx, key, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	exists, err := s.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if exists {
		t.Error("object still exists after Delete()")
	}

	// Empty digest directories are pruned
	if _, err := os.Stat(filepath.Join(s.basePath, "artifacts")); !os.IsNotExist(err) {
		t.Error("empty parent directories were not pruned")
	}
}

func TestDeleteMissingKeyIsNotAnError(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Delete(context.Background(), "artifacts/sha256/none"); err != nil {
		t.Errorf("Delete() of missing key = %v, want nil", err)
	}
}

func TestSignedURL(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	const content = "served bytes"
	key := digestKey(content)
	if _, err := s.Put(ctx, key, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	url, err := s.SignedURL(ctx, key, 15*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL() error: %v", err)
	}
	want := "http://localhost:8080/v1/objects/" + key
	if url != want {
		t.Errorf("SignedURL() = %q, want %q", url, want)
	}
}

func TestSignedURLFileScheme(t *testing.T) {
	base := t.TempDir()
	s, err := New(&config.LocalStorageConfig{BasePath: base, ServeDirectly: false}, "http://localhost:8080")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()

	const content = "file url bytes"
	key := digestKey(content)
	if _, err := s.Put(ctx, key, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	url, err := s.SignedURL(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("SignedURL() error: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("SignedURL() = %q, want file:// scheme", url)
	}
}

func TestSignedURLMissingObject(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.SignedURL(context.Background(), "artifacts/sha256/none", time.Minute); err == nil {
		t.Error("SignedURL() = nil error for missing object")
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	const content = "metadata bytes"
	key := digestKey(content)
	if _, err := s.Put(ctx, key, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	meta, err := s.Metadata(ctx, key)
	if err != nil {
		t.Fatalf("Metadata() error: %v", err)
	}
	if meta.Key != key {
		t.Errorf("meta.Key = %q, want %q", meta.Key, key)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("meta.Size = %d, want %d", meta.Size, len(content))
	}
	if meta.LastModified.IsZero() {
		t.Error("meta.LastModified is zero")
	}
}

func TestMetadataMissingObject(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Metadata(context.Background(), "artifacts/sha256/none"); err == nil {
		t.Error("Metadata() = nil error for missing object")
	}
}
