// Package azure implements the Azure Blob Storage backend for artifact
// objects. Uploads go directly to Blob Storage; downloads are served via
// time-limited SAS (Shared Access Signature) URLs generated on demand rather
// than proxied through the registry — this keeps large artifact bundles off
// the registry's network path. An optional CDN URL can front the container.
package azure

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/corevault-registry/corevault-registry/internal/config"
	"github.com/corevault-registry/corevault-registry/internal/storage"
)

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Azure)
	})
}

// AzureStorage implements the Storage interface for Azure Blob Storage
type AzureStorage struct {
	client        *azblob.Client
	containerName string
	accountName   string
	accountKey    string
	cdnURL        string
}

// New creates a new Azure Blob Storage backend
func New(cfg *config.AzureStorageConfig) (*AzureStorage, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureStorage{
		client:        client,
		containerName: cfg.ContainerName,
		accountName:   cfg.AccountName,
		accountKey:    cfg.AccountKey,
		cdnURL:        cfg.CDNURL,
	}, nil
}

// Put stores an object in Azure Blob Storage, with the digest recorded in
// blob metadata (Azure itself only tracks MD5).
func (s *AzureStorage) Put(ctx context.Context, key string, reader io.Reader, size int64) (*storage.PutResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	hasher := sha256.New()
	hasher.Write(data)
	digest := hex.EncodeToString(hasher.Sum(nil))

	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlockBlobClient(key)

	_, err = blobClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		Metadata: map[string]*string{
			"sha256": &digest,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return &storage.PutResult{
		Key:    key,
		Size:   int64(len(data)),
		SHA256: digest,
	}, nil
}

// Get retrieves an object from Azure Blob Storage
func (s *AzureStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(key)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}

	return resp.Body, nil
}

// Delete removes an object from Azure Blob Storage
func (s *AzureStorage) Delete(ctx context.Context, key string) error {
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(key)

	if _, err := blobClient.Delete(ctx, nil); err != nil {
		// A missing blob is already deleted as far as compensation paths
		// are concerned.
		exists, existsErr := s.Exists(ctx, key)
		if existsErr == nil && !exists {
			return nil
		}
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}

	return nil
}

// SignedURL returns a download URL for the object: the CDN URL when one is
// configured, otherwise a time-limited SAS URL.
func (s *AzureStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("object not found: %s", key)
	}

	if s.cdnURL != "" {
		return fmt.Sprintf("%s/%s", s.cdnURL, key), nil
	}

	credential, err := azblob.NewSharedKeyCredential(s.accountName, s.accountKey)
	if err != nil {
		return "", fmt.Errorf("failed to create credential for SAS: %w", err)
	}

	sasPermissions := sas.BlobPermissions{Read: true}
	startTime := time.Now().UTC().Add(-5 * time.Minute) // Allow for clock skew
	expiryTime := time.Now().UTC().Add(ttl)

	sasQueryParams, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     startTime,
		ExpiryTime:    expiryTime,
		Permissions:   sasPermissions.String(),
		ContainerName: s.containerName,
		BlobName:      key,
	}.SignWithSharedKey(credential)
	if err != nil {
		return "", fmt.Errorf("failed to generate SAS token: %w", err)
	}

	blobURL := fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s",
		s.accountName, s.containerName, url.PathEscape(key))

	return fmt.Sprintf("%s?%s", blobURL, sasQueryParams.Encode()), nil
}

// Exists checks if an object exists at the specified key
func (s *AzureStorage) Exists(ctx context.Context, key string) (bool, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(key)

	if _, err := blobClient.GetProperties(ctx, nil); err != nil {
		// GetProperties errors are dominated by 404s; the SDK wraps them in
		// bloberror.StorageError which is not portable to emulators.
		return false, nil
	}

	return true, nil
}

// Metadata retrieves object metadata without downloading the content
func (s *AzureStorage) Metadata(ctx context.Context, key string) (*storage.ObjectMetadata, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(key)

	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get blob properties: %w", err)
	}

	var size int64
	if props.ContentLength != nil {
		size = *props.ContentLength
	}

	var lastModified time.Time
	if props.LastModified != nil {
		lastModified = *props.LastModified
	}

	return &storage.ObjectMetadata{
		Key:          key,
		Size:         size,
		LastModified: lastModified,
	}, nil
}

// EnsureContainer creates the container if it doesn't exist
func (s *AzureStorage) EnsureContainer(ctx context.Context) error {
	containerClient := s.client.ServiceClient().NewContainerClient(s.containerName)

	// Create returns an error when the container already exists; that case
	// is fine for an idempotent startup check.
	_, _ = containerClient.Create(ctx, nil)

	return nil
}
