// Package artifacts implements the content-addressed artifact store: the
// layer between uploaded bytes and the database's artifact rows. Every stored
// artifact is identified by its SHA-256/SHA-512 digest pair; two uploads with
// the same bytes converge on one object and one row, regardless of filename.
// Externally hosted artifacts skip the object store entirely and carry a
// download URL instead.
package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/db/repositories"
	"github.com/corevault-registry/corevault-registry/internal/storage"
	"github.com/corevault-registry/corevault-registry/internal/telemetry"
	"github.com/corevault-registry/corevault-registry/internal/validation"
	"github.com/corevault-registry/corevault-registry/pkg/checksum"
)

// ErrTooLarge is returned when an upload exceeds the configured size cap.
var ErrTooLarge = errors.New("artifact exceeds maximum allowed size")

// ErrMissingDownloadURL is returned when an external artifact registration
// carries neither stored bytes nor a URL to fetch them from.
var ErrMissingDownloadURL = errors.New("external artifact requires a download url")

// IngestError wraps a failure while spooling, digesting, or persisting an
// uploaded artifact. Callers inspect the wrapped error to distinguish client
// faults (bad filename, too large) from infrastructure faults.
type IngestError struct {
	Filename string
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest of %q failed: %v", e.Filename, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Store coordinates the object backend and the artifacts table.
type Store struct {
	repo    *repositories.ArtifactRepository
	objects storage.Storage
	maxSize int64
}

// NewStore creates an artifact store with the given size cap in bytes.
func NewStore(repo *repositories.ArtifactRepository, objects storage.Storage, maxSize int64) *Store {
	return &Store{
		repo:    repo,
		objects: objects,
		maxSize: maxSize,
	}
}

// Ingest spools an uploaded file, computes its digest pair, and ensures
// exactly one stored artifact exists for that content. Re-ingesting known
// bytes is idempotent and returns the existing row.
//
// The object is written before the row is inserted so a row never points at
// missing bytes. If the insert fails for a freshly written object, the object
// is deleted again; objects shared with existing rows are left alone.
func (s *Store) Ingest(ctx context.Context, filename string, mimeType string, r io.Reader) (*models.Artifact, error) {
	if err := validation.ValidateFilename(filename); err != nil {
		return nil, &IngestError{Filename: filename, Err: err}
	}

	// Spool with a one-byte overshoot so we can tell "exactly at the cap"
	// from "over the cap" without trusting a client-supplied length.
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, &IngestError{Filename: filename, Err: fmt.Errorf("failed to read upload: %w", err)}
	}
	if n > s.maxSize {
		return nil, &IngestError{Filename: filename, Err: ErrTooLarge}
	}

	pair := checksum.ComputeBytes(buf.Bytes())

	// Fast path: content already known.
	existing, err := s.repo.GetByDigestPair(ctx, pair.SHA256, pair.SHA512)
	if err != nil {
		return nil, &IngestError{Filename: filename, Err: err}
	}
	if existing != nil {
		telemetry.ArtifactDedupHitsTotal.Inc()
		return existing, nil
	}

	artifact := &models.Artifact{
		Filename:  filename,
		MimeType:  mimeType,
		SHA256:    &pair.SHA256,
		SHA512:    &pair.SHA512,
		SizeBytes: n,
	}

	key := artifact.ObjectKey()
	if _, err := s.objects.Put(ctx, key, bytes.NewReader(buf.Bytes()), n); err != nil {
		return nil, &IngestError{Filename: filename, Err: fmt.Errorf("failed to store object: %w", err)}
	}

	created, err := s.repo.CreateStored(ctx, artifact)
	if err != nil {
		// The object write is only ours to undo if no row claims the key.
		// A concurrent winner's row shares the same key by construction.
		_ = s.objects.Delete(ctx, key)
		return nil, &IngestError{Filename: filename, Err: err}
	}
	_ = created // loser of a concurrent race gets the winner's row, same key

	telemetry.ArtifactIngestsTotal.Inc()
	telemetry.ArtifactIngestBytesTotal.Add(float64(n))

	return artifact, nil
}

// RegisterExternal records an artifact whose bytes live outside the object
// store. Digests are optional; a download URL is not. A registration that
// carries the full digest pair dedups against existing content the same way
// Ingest does: the known row is returned instead of a second one.
func (s *Store) RegisterExternal(ctx context.Context, filename, mimeType, downloadURL string, size int64, sha256, sha512 *string) (*models.Artifact, error) {
	if err := validation.ValidateFilename(filename); err != nil {
		return nil, err
	}
	if downloadURL == "" {
		return nil, ErrMissingDownloadURL
	}

	if sha256 != nil && sha512 != nil {
		existing, err := s.repo.GetByDigestPair(ctx, *sha256, *sha512)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			telemetry.ArtifactDedupHitsTotal.Inc()
			return existing, nil
		}
	}

	artifact := &models.Artifact{
		Filename:    filename,
		MimeType:    mimeType,
		SHA256:      sha256,
		SHA512:      sha512,
		SizeBytes:   size,
		DownloadURL: &downloadURL,
	}

	if err := s.repo.CreateExternal(ctx, artifact); err != nil {
		return nil, err
	}

	return artifact, nil
}

// Open returns a reader over a stored artifact's bytes.
func (s *Store) Open(ctx context.Context, artifact *models.Artifact) (io.ReadCloser, error) {
	if !artifact.Stored() {
		return nil, fmt.Errorf("artifact %d is externally hosted", artifact.ID)
	}
	return s.objects.Get(ctx, artifact.ObjectKey())
}

// DownloadURL resolves where a client should fetch the artifact from: the
// external URL when one is recorded, otherwise a signed URL for the stored
// object.
func (s *Store) DownloadURL(ctx context.Context, artifact *models.Artifact, ttl time.Duration) (string, error) {
	if artifact.DownloadURL != nil {
		return *artifact.DownloadURL, nil
	}
	if !artifact.Stored() {
		return "", fmt.Errorf("artifact %d has neither stored bytes nor a download url", artifact.ID)
	}
	return s.objects.SignedURL(ctx, artifact.ObjectKey(), ttl)
}

// Discard removes an artifact row and its object when nothing references it.
// Used to compensate a release creation that failed after ingest. Safe to call
// on shared artifacts; those are left untouched.
func (s *Store) Discard(ctx context.Context, artifact *models.Artifact) error {
	deleted, err := s.repo.DeleteIfUnreferenced(ctx, artifact.ID)
	if err != nil {
		return err
	}
	if deleted && artifact.Stored() {
		return s.objects.Delete(ctx, artifact.ObjectKey())
	}
	return nil
}
