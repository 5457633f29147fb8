package storage_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevault-registry/corevault-registry/internal/config"
	"github.com/corevault-registry/corevault-registry/internal/storage"
)

type fakeBackend struct{}

func (fakeBackend) Put(context.Context, string, io.Reader, int64) (*storage.PutResult, error) {
	return nil, nil
}
func (fakeBackend) Get(context.Context, string) (io.ReadCloser, error) { return nil, nil }
func (fakeBackend) Delete(context.Context, string) error               { return nil }
func (fakeBackend) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}
func (fakeBackend) Exists(context.Context, string) (bool, error) { return false, nil }
func (fakeBackend) Metadata(context.Context, string) (*storage.ObjectMetadata, error) {
	return nil, nil
}

func storageConfig(backend string) *config.Config {
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = backend
	return cfg
}

func TestNewStorage_UsesRegisteredFactory(t *testing.T) {
	storage.Register("fake", func(*config.Config) (storage.Storage, error) {
		return fakeBackend{}, nil
	})

	s, err := storage.NewStorage(storageConfig("fake"))
	require.NoError(t, err)
	assert.IsType(t, fakeBackend{}, s)
}

func TestNewStorage_PropagatesFactoryError(t *testing.T) {
	boom := errors.New("bucket unreachable")
	storage.Register("broken", func(*config.Config) (storage.Storage, error) {
		return nil, boom
	})

	_, err := storage.NewStorage(storageConfig("broken"))
	assert.ErrorIs(t, err, boom)
}

func TestNewStorage_RejectsUnknownBackend(t *testing.T) {
	for _, backend := range []string{"", "never-registered"} {
		_, err := storage.NewStorage(storageConfig(backend))
		assert.Error(t, err, "backend %q", backend)
	}
}
