// Package releases implements the release ledger: the append-mostly record of
// versioned publications for cores and systems. A release binds a validated
// version string to a set of artifacts, snapshots the owning team at creation
// time, and afterwards only ever changes in three narrow ways — notes edits,
// prerelease promotion, and a one-way yank. Version slots are never reused;
// a yanked release still occupies its version.
package releases

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/corevault-registry/corevault-registry/internal/artifacts"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/db/repositories"
	"github.com/corevault-registry/corevault-registry/internal/validation"
)

// Target identifies what a release is for: a core (per platform) or a system.
// OwnerTeamID is the team owning the catalog entry at lookup time; the ledger
// snapshots it onto the release row.
type Target struct {
	Kind        string
	ID          int64
	OwnerTeamID int64
}

// File is an uploaded artifact to ingest into the object store.
type File struct {
	Filename string
	MimeType string
	Content  io.Reader
}

// ExternalFile references artifact bytes hosted outside the object store.
type ExternalFile struct {
	Filename string
	MimeType string
	URL      string
	Size     int64
	SHA256   *string
	SHA512   *string
}

// Meta carries the caller-supplied release fields that are not identity.
type Meta struct {
	Notes      *string
	Prerelease bool
	Links      json.RawMessage
	Metadata   json.RawMessage
	ReleasedAt time.Time
}

// EditRequest carries the mutable fields of a release edit. A nil Notes
// leaves the notes alone; Promote clears the prerelease flag. Prerelease, when
// set, states the desired flag explicitly: false is equivalent to Promote, and
// true is only accepted while the release still carries the flag — promotion
// is one-way.
type EditRequest struct {
	Notes      *string
	Promote    bool
	Prerelease *bool
}

// Ledger orchestrates release creation and lifecycle against the repository,
// the artifact store, and the authorization engine.
type Ledger struct {
	repo      *repositories.ReleaseRepository
	artifacts *artifacts.Store
	authz     *auth.Authorizer
}

// NewLedger creates a release ledger.
func NewLedger(repo *repositories.ReleaseRepository, store *artifacts.Store, authz *auth.Authorizer) *Ledger {
	return &Ledger{
		repo:      repo,
		artifacts: store,
		authz:     authz,
	}
}

// Create publishes a new release for the target. The sequence is deliberate:
// authorization, then version validation, then a duplicate pre-check — all
// before any artifact bytes are ingested — so rejected requests never write
// objects. A concurrent duplicate that slips past the pre-check is caught by
// the unique constraint at commit, and freshly ingested artifacts are
// discarded again.
//
// platformID is required for core targets and forbidden for system targets.
func (l *Ledger) Create(ctx context.Context, p auth.Principal, target Target, platformID *int64, version string, meta Meta, files []File, external []ExternalFile) (*models.Release, error) {
	switch target.Kind {
	case models.ReleaseKindCore:
		if platformID == nil {
			return nil, ErrPlatformMismatch
		}
	case models.ReleaseKindSystem:
		if platformID != nil {
			return nil, ErrPlatformMismatch
		}
	default:
		return nil, fmt.Errorf("unknown release target kind %q", target.Kind)
	}

	if err := l.authz.Can(ctx, p, auth.ActionCreateRelease, target.OwnerTeamID); err != nil {
		return nil, err
	}

	if err := validation.ValidateVersion(version); err != nil {
		return nil, err
	}

	if len(files)+len(external) == 0 {
		return nil, ErrNoArtifacts
	}
	if err := checkFilenamesDistinct(files, external); err != nil {
		return nil, err
	}

	exists, err := l.repo.VersionExists(ctx, target.Kind, target.ID, platformID, version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if exists {
		return nil, ErrDuplicateVersion
	}

	ingested, artifactIDs, err := l.ingestAll(ctx, files, external)
	if err != nil {
		l.discardAll(ctx, ingested)
		return nil, err
	}

	release := &models.Release{
		Kind:        target.Kind,
		Version:     version,
		Notes:       meta.Notes,
		Prerelease:  meta.Prerelease,
		Links:       meta.Links,
		Metadata:    meta.Metadata,
		UploaderID:  p.UserID,
		OwnerTeamID: target.OwnerTeamID,
		ReleasedAt:  meta.ReleasedAt,
	}
	switch target.Kind {
	case models.ReleaseKindCore:
		release.CoreID = &target.ID
		release.PlatformID = platformID
	case models.ReleaseKindSystem:
		release.SystemID = &target.ID
	}

	if err := l.repo.CreateWithArtifacts(ctx, release, artifactIDs); err != nil {
		l.discardAll(ctx, ingested)
		if isUniqueViolation(err) {
			return nil, ErrDuplicateVersion
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	release.Artifacts = ingested
	slog.Info("release created",
		"kind", release.Kind,
		"target_id", target.ID,
		"version", release.Version,
		"artifacts", len(artifactIDs),
		"uploader_id", p.UserID)

	return release, nil
}

// ingestAll ingests uploads and registers external references, returning the
// artifact rows in request order. On error the already-created rows are
// returned so the caller can discard them.
func (l *Ledger) ingestAll(ctx context.Context, files []File, external []ExternalFile) ([]*models.Artifact, []int64, error) {
	var created []*models.Artifact
	var ids []int64

	for _, f := range files {
		artifact, err := l.artifacts.Ingest(ctx, f.Filename, f.MimeType, f.Content)
		if err != nil {
			return created, nil, err
		}
		created = append(created, artifact)
		ids = append(ids, artifact.ID)
	}

	for _, f := range external {
		artifact, err := l.artifacts.RegisterExternal(ctx, f.Filename, f.MimeType, f.URL, f.Size, f.SHA256, f.SHA512)
		if err != nil {
			return created, nil, err
		}
		created = append(created, artifact)
		ids = append(ids, artifact.ID)
	}

	return created, ids, nil
}

// discardAll compensates a failed creation. Artifacts referenced by other
// releases survive; only orphans are removed. Failures here are logged, not
// returned — the original error is what the caller needs.
func (l *Ledger) discardAll(ctx context.Context, created []*models.Artifact) {
	for _, artifact := range created {
		if err := l.artifacts.Discard(ctx, artifact); err != nil {
			slog.Warn("failed to discard orphaned artifact",
				"artifact_id", artifact.ID, "error", err)
		}
	}
}

func checkFilenamesDistinct(files []File, external []ExternalFile) error {
	seen := make(map[string]bool, len(files)+len(external))
	record := func(name string) error {
		if seen[name] {
			return fmt.Errorf("%w: %q", ErrDuplicateFilename, name)
		}
		seen[name] = true
		return nil
	}
	for _, f := range files {
		if err := record(f.Filename); err != nil {
			return err
		}
	}
	for _, f := range external {
		if err := record(f.Filename); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the highest-version eligible release for the target, or nil
// when none exists. Yanked releases never win; prereleases only win when
// includePrerelease is set.
func (l *Ledger) Latest(ctx context.Context, target Target, platformID *int64, includePrerelease bool) (*models.Release, error) {
	release, err := l.repo.Latest(ctx, target.Kind, target.ID, platformID, includePrerelease)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return release, nil
}

// List returns the target's releases newest-version-first. Yanked releases
// are included only on request; they remain listed for auditability either
// way via Get.
func (l *Ledger) List(ctx context.Context, target Target, platformID *int64, includeYanked bool, limit, offset int) ([]*models.Release, error) {
	releases, err := l.repo.List(ctx, target.Kind, target.ID, platformID, includeYanked, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return releases, nil
}

// Get returns the release at an exact version, yanked or not.
func (l *Ledger) Get(ctx context.Context, target Target, platformID *int64, version string) (*models.Release, error) {
	var release *models.Release
	var err error
	switch target.Kind {
	case models.ReleaseKindCore:
		if platformID == nil {
			return nil, ErrPlatformMismatch
		}
		release, err = l.repo.GetCoreRelease(ctx, target.ID, *platformID, version)
	case models.ReleaseKindSystem:
		release, err = l.repo.GetSystemRelease(ctx, target.ID, version)
	default:
		return nil, fmt.Errorf("unknown release target kind %q", target.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if release == nil {
		return nil, ErrNotFound
	}
	return release, nil
}

// GetByID returns a release by row id.
func (l *Ledger) GetByID(ctx context.Context, id int64) (*models.Release, error) {
	release, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if release == nil {
		return nil, ErrNotFound
	}
	return release, nil
}

// Yank marks a release as withdrawn. The row and its version slot stay; only
// latest-resolution and default listings skip it. Authorization runs against
// the owning team snapshotted at creation, not the catalog entry's current
// owner.
func (l *Ledger) Yank(ctx context.Context, p auth.Principal, releaseID int64) (*models.Release, error) {
	release, err := l.GetByID(ctx, releaseID)
	if err != nil {
		return nil, err
	}

	if err := l.authz.Can(ctx, p, auth.ActionYankRelease, release.OwnerTeamID); err != nil {
		return nil, err
	}

	if release.Yanked {
		return nil, ErrAlreadyYanked
	}

	if err := l.repo.SetYanked(ctx, releaseID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	release.Yanked = true

	slog.Info("release yanked",
		"release_id", releaseID,
		"kind", release.Kind,
		"version", release.Version,
		"by_user_id", p.UserID)

	return release, nil
}

// Edit updates a release's notes and optionally promotes it out of
// prerelease. Promotion is one-way; an edit cannot reintroduce the flag.
func (l *Ledger) Edit(ctx context.Context, p auth.Principal, releaseID int64, req EditRequest) (*models.Release, error) {
	release, err := l.GetByID(ctx, releaseID)
	if err != nil {
		return nil, err
	}

	if err := l.authz.Can(ctx, p, auth.ActionEditRelease, release.OwnerTeamID); err != nil {
		return nil, err
	}

	if req.Prerelease != nil {
		if *req.Prerelease && !release.Prerelease {
			return nil, ErrPrereleaseRestore
		}
		if !*req.Prerelease {
			req.Promote = true
		}
	}

	if req.Notes == nil && !req.Promote {
		return release, nil
	}

	if err := l.repo.Update(ctx, releaseID, req.Notes, req.Promote); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if req.Notes != nil {
		release.Notes = req.Notes
	}
	if req.Promote {
		release.Prerelease = false
	}

	return release, nil
}
