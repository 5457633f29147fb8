// Package gcs implements the Google Cloud Storage backend for artifact
// objects. Downloads use time-limited signed URLs generated via the GCS
// signing API; the registry never proxies artifact content. Supports
// Application Default Credentials and service account JSON keys.
package gcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/corevault-registry/corevault-registry/internal/config"
	appstorage "github.com/corevault-registry/corevault-registry/internal/storage"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Storage, error) {
		return New(&cfg.Storage.GCS)
	})
}

// GCSStorage implements the Storage interface for Google Cloud Storage
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// New creates a new Google Cloud Storage backend.
//
// Authentication methods:
//   - "default" or empty: Application Default Credentials (ADC) — covers
//     GOOGLE_APPLICATION_CREDENTIALS, the GCE/GKE metadata service,
//     Cloud Run service accounts, and gcloud auth application-default login
//   - "service_account": a service account key file or inline JSON
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	ctx := context.Background()
	var opts []option.ClientOption

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		if cfg.CredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		} else if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		} else {
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}

	case "default":
		// ADC needs no client options

	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default' or 'service_account')", authMethod)
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Close closes the GCS client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// Put stores an object in GCS, recording its digest as object metadata.
func (s *GCSStorage) Put(ctx context.Context, key string, reader io.Reader, size int64) (*appstorage.PutResult, error) {
	obj := s.client.Bucket(s.bucket).Object(key)

	writer := obj.NewWriter(ctx)
	hasher := sha256.New()

	written, err := io.Copy(writer, io.TeeReader(reader, hasher))
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))

	// Metadata update failure is non-fatal; the digest also lives in the
	// database row and in the key itself.
	_, _ = obj.Update(ctx, storage.ObjectAttrsToUpdate{
		Metadata: map[string]string{"sha256": digest},
	})

	return &appstorage.PutResult{
		Key:    key,
		Size:   written,
		SHA256: digest,
	}, nil
}

// Get retrieves an object from GCS
func (s *GCSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}

	return reader, nil
}

// Delete removes an object from GCS
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if err == storage.ErrObjectNotExist {
			return nil
		}
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}

	return nil
}

// SignedURL returns a signed URL for downloading the object.
// Requires the service account to have signBlob permissions (or the
// iam.serviceAccountTokenCreator role under ADC).
func (s *GCSStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("object not found: %s", key)
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return url, nil
}

// Exists checks if an object exists at the specified key
func (s *GCSStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}

// Metadata retrieves object metadata without downloading the content
func (s *GCSStorage) Metadata(ctx context.Context, key string) (*appstorage.ObjectMetadata, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}

	return &appstorage.ObjectMetadata{
		Key:          key,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *GCSStorage) EnsureBucket(ctx context.Context, projectID string) error {
	bucket := s.client.Bucket(s.bucket)

	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if err != storage.ErrBucketNotExist {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if projectID == "" {
		return fmt.Errorf("project_id is required to create a bucket")
	}

	if err := bucket.Create(ctx, projectID, nil); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
