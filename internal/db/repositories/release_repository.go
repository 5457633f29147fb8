// release_repository.go implements ReleaseRepository, providing database
// queries for release rows and their artifact links. The release row and its
// join rows are written in a single transaction; the partial unique indexes
// on (core_id, platform_id, version) and (system_id, version) are the final
// arbiter against concurrent creators of the same version.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/validation"
)

// ReleaseRepository handles database operations for releases
type ReleaseRepository struct {
	db *sql.DB
}

// NewReleaseRepository creates a new release repository
func NewReleaseRepository(db *sql.DB) *ReleaseRepository {
	return &ReleaseRepository{db: db}
}

const releaseColumns = `r.id, r.kind, r.core_id, r.system_id, r.platform_id, r.version, r.notes,
	       r.prerelease, r.yanked, r.links, r.metadata, r.uploader_id, r.owner_team_id,
	       r.released_at, r.uploaded_at, u.username AS uploader_name`

// CreateWithArtifacts inserts a release row and its artifact links in one
// transaction. A unique-constraint violation (concurrent creation of the
// same version) is returned unwrapped so the caller can inspect the pq error
// code.
func (r *ReleaseRepository) CreateWithArtifacts(ctx context.Context, release *models.Release, artifactIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO releases
		  (kind, core_id, system_id, platform_id, version, notes, prerelease,
		   links, metadata, uploader_id, owner_team_id, released_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
		        COALESCE($8, '{}'::jsonb), COALESCE($9, '{}'::jsonb), $10, $11, COALESCE($12, NOW()))
		RETURNING id, links, metadata, released_at, uploaded_at
	`

	var releasedAt interface{}
	if !release.ReleasedAt.IsZero() {
		releasedAt = release.ReleasedAt
	}

	err = tx.QueryRowContext(ctx, query,
		release.Kind,
		release.CoreID,
		release.SystemID,
		release.PlatformID,
		release.Version,
		release.Notes,
		release.Prerelease,
		nullableJSON(release.Links),
		nullableJSON(release.Metadata),
		release.UploaderID,
		release.OwnerTeamID,
		releasedAt,
	).Scan(&release.ID, &release.Links, &release.Metadata, &release.ReleasedAt, &release.UploadedAt)
	if err != nil {
		// Returned unwrapped: unique violations carry the pq error code the
		// ledger maps to DuplicateVersion.
		return err
	}

	for _, artifactID := range artifactIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO release_artifacts (release_id, artifact_id) VALUES ($1, $2)`,
			release.ID, artifactID)
		if err != nil {
			return fmt.Errorf("failed to link artifact %d: %w", artifactID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// GetByID retrieves a release by id. Returns nil when not found.
func (r *ReleaseRepository) GetByID(ctx context.Context, id int64) (*models.Release, error) {
	query := `
		SELECT ` + releaseColumns + `
		FROM releases r
		JOIN users u ON u.id = r.uploader_id
		WHERE r.id = $1
	`
	return r.scanRelease(r.db.QueryRowContext(ctx, query, id))
}

// GetCoreRelease retrieves a core release by exact version, yanked or not.
// Returns nil when not found.
func (r *ReleaseRepository) GetCoreRelease(ctx context.Context, coreID, platformID int64, version string) (*models.Release, error) {
	query := `
		SELECT ` + releaseColumns + `
		FROM releases r
		JOIN users u ON u.id = r.uploader_id
		WHERE r.kind = 'core' AND r.core_id = $1 AND r.platform_id = $2 AND r.version = $3
	`
	return r.scanRelease(r.db.QueryRowContext(ctx, query, coreID, platformID, version))
}

// GetSystemRelease retrieves a system release by exact version, yanked or
// not. Returns nil when not found.
func (r *ReleaseRepository) GetSystemRelease(ctx context.Context, systemID int64, version string) (*models.Release, error) {
	query := `
		SELECT ` + releaseColumns + `
		FROM releases r
		JOIN users u ON u.id = r.uploader_id
		WHERE r.kind = 'system' AND r.system_id = $1 AND r.version = $2
	`
	return r.scanRelease(r.db.QueryRowContext(ctx, query, systemID, version))
}

// VersionExists reports whether any release row (yanked included — yanking
// does not free the version string) occupies the version slot. Core versions
// are scoped per (core, platform); system versions share one global namespace
// across all systems, so targetID is not consulted for that kind.
func (r *ReleaseRepository) VersionExists(ctx context.Context, kind string, targetID int64, platformID *int64, version string) (bool, error) {
	var query string
	var args []interface{}
	if kind == models.ReleaseKindCore {
		query = `SELECT COUNT(*) FROM releases WHERE kind = 'core' AND core_id = $1 AND platform_id = $2 AND version = $3`
		args = []interface{}{targetID, platformID, version}
	} else {
		query = `SELECT COUNT(*) FROM releases WHERE kind = 'system' AND version = $1`
		args = []interface{}{version}
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check version existence: %w", err)
	}
	return count > 0, nil
}

// List returns releases for a target ordered newest-version-first. Yanked
// rows are included only when includeYanked is set; the ordering uses the
// validated version grammar, not row insertion order.
func (r *ReleaseRepository) List(ctx context.Context, kind string, targetID int64, platformID *int64, includeYanked bool, limit, offset int) ([]*models.Release, error) {
	releases, err := r.fetchReleases(ctx, kind, targetID, platformID)
	if err != nil {
		return nil, err
	}

	if !includeYanked {
		kept := releases[:0]
		for _, rel := range releases {
			if !rel.Yanked {
				kept = append(kept, rel)
			}
		}
		releases = kept
	}

	sort.Slice(releases, func(i, j int) bool {
		return validation.CompareVersions(releases[i].Version, releases[j].Version) > 0
	})

	if offset >= len(releases) {
		return nil, nil
	}
	releases = releases[offset:]
	if limit > 0 && limit < len(releases) {
		releases = releases[:limit]
	}

	return releases, nil
}

// Latest returns the highest-version non-yanked release for a target, or nil
// when the target has no eligible release. Prereleases are skipped unless
// requested.
func (r *ReleaseRepository) Latest(ctx context.Context, kind string, targetID int64, platformID *int64, includePrerelease bool) (*models.Release, error) {
	releases, err := r.fetchReleases(ctx, kind, targetID, platformID)
	if err != nil {
		return nil, err
	}

	var latest *models.Release
	for _, rel := range releases {
		if rel.Yanked {
			continue
		}
		if rel.Prerelease && !includePrerelease {
			continue
		}
		if latest == nil || validation.CompareVersions(rel.Version, latest.Version) > 0 {
			latest = rel
		}
	}

	return latest, nil
}

// SetYanked marks a release as yanked. One-way: there is no unyank.
func (r *ReleaseRepository) SetYanked(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE releases SET yanked = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to yank release: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// Update edits a release's mutable fields: notes, and the prerelease flag
// (only ever cleared — promotion to a full release). Version and identity
// columns are never touched.
func (r *ReleaseRepository) Update(ctx context.Context, id int64, notes *string, clearPrerelease bool) error {
	query := `
		UPDATE releases
		SET notes = COALESCE($1, notes),
		    prerelease = CASE WHEN $2 THEN FALSE ELSE prerelease END
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, notes, clearPrerelease, id)
	if err != nil {
		return fmt.Errorf("failed to update release: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *ReleaseRepository) fetchReleases(ctx context.Context, kind string, targetID int64, platformID *int64) ([]*models.Release, error) {
	query := `
		SELECT ` + releaseColumns + `
		FROM releases r
		JOIN users u ON u.id = r.uploader_id
		WHERE r.kind = $1
	`
	args := []interface{}{kind}

	if kind == models.ReleaseKindCore {
		query += ` AND r.core_id = $2`
		args = append(args, targetID)
		if platformID != nil {
			query += ` AND r.platform_id = $3`
			args = append(args, *platformID)
		}
	} else {
		query += ` AND r.system_id = $2`
		args = append(args, targetID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query releases: %w", err)
	}
	defer rows.Close()

	var releases []*models.Release
	for rows.Next() {
		rel := &models.Release{}
		err := rows.Scan(
			&rel.ID,
			&rel.Kind,
			&rel.CoreID,
			&rel.SystemID,
			&rel.PlatformID,
			&rel.Version,
			&rel.Notes,
			&rel.Prerelease,
			&rel.Yanked,
			&rel.Links,
			&rel.Metadata,
			&rel.UploaderID,
			&rel.OwnerTeamID,
			&rel.ReleasedAt,
			&rel.UploadedAt,
			&rel.UploaderName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan release: %w", err)
		}
		releases = append(releases, rel)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating releases: %w", err)
	}

	return releases, nil
}

func (r *ReleaseRepository) scanRelease(row *sql.Row) (*models.Release, error) {
	rel := &models.Release{}
	err := row.Scan(
		&rel.ID,
		&rel.Kind,
		&rel.CoreID,
		&rel.SystemID,
		&rel.PlatformID,
		&rel.Version,
		&rel.Notes,
		&rel.Prerelease,
		&rel.Yanked,
		&rel.Links,
		&rel.Metadata,
		&rel.UploaderID,
		&rel.OwnerTeamID,
		&rel.ReleasedAt,
		&rel.UploadedAt,
		&rel.UploaderName,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get release: %w", err)
	}
	return rel, nil
}
