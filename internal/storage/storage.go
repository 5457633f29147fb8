// Package storage defines the Storage interface and common types for all
// object-store backends holding artifact bytes.
//
// Object keys are content-addressed ("artifacts/sha256/<hex>"), so a Put of
// bytes already present is harmless: every backend overwrite writes the same
// content. New backends are added by implementing the Storage interface and
// registering with the factory via an init() function in the backend's own
// package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init().
// This means adding a new backend requires no changes to the factory or main
// package — only a blank import in cmd/server/main.go.
package storage

import (
	"context"
	"io"
	"time"
)

// Storage is the object-store boundary the artifact store writes through.
type Storage interface {
	// Put stores an object and returns the storage result. size must be the
	// exact byte count of reader's content; backends may reject mismatches.
	Put(ctx context.Context, key string, reader io.Reader, size int64) (*PutResult, error)

	// Get retrieves an object and returns a reader over its bytes
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing key is not an error;
	// compensation paths retry deletes blindly.
	Delete(ctx context.Context, key string) error

	// SignedURL returns a direct download URL.
	// For cloud storage, this generates a signed URL valid for the given TTL.
	// For local storage, this returns a path for serving.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Exists checks if an object exists at the specified key
	Exists(ctx context.Context, key string) (bool, error)

	// Metadata retrieves object metadata without downloading the content
	Metadata(ctx context.Context, key string) (*ObjectMetadata, error)
}

// PutResult contains information about a stored object
type PutResult struct {
	// Key is the storage key where the object was stored
	Key string

	// Size is the object size in bytes
	Size int64

	// SHA256 is the hex digest of the object contents, computed while writing
	SHA256 string
}

// ObjectMetadata contains metadata about a stored object
type ObjectMetadata struct {
	// Key is the storage key of the object
	Key string

	// Size is the object size in bytes
	Size int64

	// LastModified is the timestamp when the object was last modified
	LastModified time.Time
}
