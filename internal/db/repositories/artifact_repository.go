// artifact_repository.go implements ArtifactRepository, providing database
// queries for content-addressed artifact records. The (sha256, sha512) unique
// index makes inserts race-safe: concurrent ingests of identical bytes
// resolve to a single row via insert-on-conflict-do-nothing plus re-read.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/corevault-registry/corevault-registry/internal/db/models"
)

// ArtifactRepository handles database operations for artifacts
type ArtifactRepository struct {
	db *sql.DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *sql.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

const artifactColumns = `id, filename, mime_type, sha256, sha512, size_bytes, download_url, created_at`

// GetByDigestPair retrieves the artifact with the given digest pair. Returns
// nil when no such content is known.
func (r *ArtifactRepository) GetByDigestPair(ctx context.Context, sha256, sha512 string) (*models.Artifact, error) {
	query := `
		SELECT ` + artifactColumns + `
		FROM artifacts
		WHERE sha256 = $1 AND sha512 = $2
	`

	return r.scanArtifact(r.db.QueryRowContext(ctx, query, sha256, sha512))
}

// GetByID retrieves an artifact by id. Returns nil when not found.
func (r *ArtifactRepository) GetByID(ctx context.Context, id int64) (*models.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE id = $1`
	return r.scanArtifact(r.db.QueryRowContext(ctx, query, id))
}

// CreateStored inserts a content-addressed artifact row. When a concurrent
// ingest already inserted the same digest pair, the existing row is returned
// and created is false. The ON CONFLICT target names the partial digest-pair
// index so only fully digested rows participate in dedup.
func (r *ArtifactRepository) CreateStored(ctx context.Context, artifact *models.Artifact) (created bool, err error) {
	query := `
		INSERT INTO artifacts (filename, mime_type, sha256, sha512, size_bytes, download_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sha256, sha512) WHERE sha256 IS NOT NULL AND sha512 IS NOT NULL
		DO NOTHING
		RETURNING id, created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		artifact.Filename,
		artifact.MimeType,
		artifact.SHA256,
		artifact.SHA512,
		artifact.SizeBytes,
		artifact.DownloadURL,
	).Scan(&artifact.ID, &artifact.CreatedAt)

	if err == sql.ErrNoRows {
		// Conflict: the digest pair already exists. Re-read the winner.
		existing, readErr := r.GetByDigestPair(ctx, *artifact.SHA256, *artifact.SHA512)
		if readErr != nil {
			return false, readErr
		}
		if existing == nil {
			return false, fmt.Errorf("artifact with digest %s vanished after conflict", *artifact.SHA256)
		}
		*artifact = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create artifact: %w", err)
	}

	return true, nil
}

// CreateExternal inserts an artifact row for externally hosted content.
// Digests are optional here; the schema requires a download URL instead. A
// fully digested registration participates in digest-pair dedup exactly like
// a stored artifact: on conflict the existing row is adopted. Rows missing a
// digest sit outside the partial index and always insert.
func (r *ArtifactRepository) CreateExternal(ctx context.Context, artifact *models.Artifact) error {
	query := `
		INSERT INTO artifacts (filename, mime_type, sha256, sha512, size_bytes, download_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sha256, sha512) WHERE sha256 IS NOT NULL AND sha512 IS NOT NULL
		DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		artifact.Filename,
		artifact.MimeType,
		artifact.SHA256,
		artifact.SHA512,
		artifact.SizeBytes,
		artifact.DownloadURL,
	).Scan(&artifact.ID, &artifact.CreatedAt)

	if err == sql.ErrNoRows && artifact.SHA256 != nil && artifact.SHA512 != nil {
		existing, readErr := r.GetByDigestPair(ctx, *artifact.SHA256, *artifact.SHA512)
		if readErr != nil {
			return readErr
		}
		if existing == nil {
			return fmt.Errorf("artifact with digest %s vanished after conflict", *artifact.SHA256)
		}
		*artifact = *existing
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create external artifact: %w", err)
	}

	return nil
}

// DeleteIfUnreferenced removes an artifact row only when no release links to
// it. Used to compensate a failed release creation without disturbing
// artifacts shared with existing releases. Reports whether a row was deleted.
func (r *ArtifactRepository) DeleteIfUnreferenced(ctx context.Context, id int64) (bool, error) {
	query := `
		DELETE FROM artifacts
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM release_artifacts WHERE artifact_id = $1)
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete artifact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListForRelease returns the artifacts linked to a release.
func (r *ArtifactRepository) ListForRelease(ctx context.Context, releaseID int64) ([]*models.Artifact, error) {
	query := `
		SELECT a.id, a.filename, a.mime_type, a.sha256, a.sha512, a.size_bytes, a.download_url, a.created_at
		FROM artifacts a
		JOIN release_artifacts ra ON ra.artifact_id = a.id
		WHERE ra.release_id = $1
		ORDER BY a.filename
	`

	rows, err := r.db.QueryContext(ctx, query, releaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list release artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*models.Artifact
	for rows.Next() {
		a := &models.Artifact{}
		err := rows.Scan(
			&a.ID,
			&a.Filename,
			&a.MimeType,
			&a.SHA256,
			&a.SHA512,
			&a.SizeBytes,
			&a.DownloadURL,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	return artifacts, nil
}

// GetForRelease returns a single artifact linked to a release. Returns nil
// when the artifact is not linked to that release.
func (r *ArtifactRepository) GetForRelease(ctx context.Context, releaseID, artifactID int64) (*models.Artifact, error) {
	query := `
		SELECT a.id, a.filename, a.mime_type, a.sha256, a.sha512, a.size_bytes, a.download_url, a.created_at
		FROM artifacts a
		JOIN release_artifacts ra ON ra.artifact_id = a.id
		WHERE ra.release_id = $1 AND a.id = $2
	`

	return r.scanArtifact(r.db.QueryRowContext(ctx, query, releaseID, artifactID))
}

// IsFilenameUniqueForRelease reports whether no artifact with the given
// filename is linked to the release yet.
func (r *ArtifactRepository) IsFilenameUniqueForRelease(ctx context.Context, releaseID int64, filename string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM artifacts a
		JOIN release_artifacts ra ON ra.artifact_id = a.id
		WHERE ra.release_id = $1 AND a.filename = $2
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, releaseID, filename).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check filename uniqueness: %w", err)
	}
	return count == 0, nil
}

func (r *ArtifactRepository) scanArtifact(row *sql.Row) (*models.Artifact, error) {
	a := &models.Artifact{}
	err := row.Scan(
		&a.ID,
		&a.Filename,
		&a.MimeType,
		&a.SHA256,
		&a.SHA512,
		&a.SizeBytes,
		&a.DownloadURL,
		&a.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}
