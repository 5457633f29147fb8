// Package releases implements the HTTP handlers for the release ledger:
// publishing releases (multipart upload with attached files), browsing the
// version history of a core or system, yanking, editing, and redirecting
// artifact downloads to the object store.
package releases

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corevault-registry/corevault-registry/internal/api/httperr"
	"github.com/corevault-registry/corevault-registry/internal/artifacts"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/db/repositories"
	"github.com/corevault-registry/corevault-registry/internal/middleware"
	ledger "github.com/corevault-registry/corevault-registry/internal/releases"
	"github.com/corevault-registry/corevault-registry/internal/telemetry"
)

// Handlers bundles the release endpoints and their dependencies.
type Handlers struct {
	ledger       *ledger.Ledger
	store        *artifacts.Store
	catalog      *repositories.CatalogRepository
	artifactRepo *repositories.ArtifactRepository
	downloadTTL  time.Duration
}

// NewHandlers creates the release handler set. downloadTTL bounds the
// validity of signed download URLs.
func NewHandlers(l *ledger.Ledger, store *artifacts.Store, catalog *repositories.CatalogRepository, artifactRepo *repositories.ArtifactRepository, downloadTTL time.Duration) *Handlers {
	return &Handlers{
		ledger:       l,
		store:        store,
		catalog:      catalog,
		artifactRepo: artifactRepo,
		downloadTTL:  downloadTTL,
	}
}

// resolveSystemTarget maps the :slug route parameter to a system release
// target. Writes the error response itself on failure.
func (h *Handlers) resolveSystemTarget(c *gin.Context) (ledger.Target, bool) {
	system, err := h.catalog.GetSystemBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		httperr.Write(c, err)
		return ledger.Target{}, false
	}
	if system == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "system not found"})
		return ledger.Target{}, false
	}
	return ledger.Target{
		Kind:        models.ReleaseKindSystem,
		ID:          system.ID,
		OwnerTeamID: system.OwnerTeamID,
	}, true
}

// resolveCoreTarget maps the :slug and :platform route parameters to a core
// release target plus the platform id.
func (h *Handlers) resolveCoreTarget(c *gin.Context) (ledger.Target, *int64, bool) {
	ctx := c.Request.Context()

	core, err := h.catalog.GetCoreBySlug(ctx, c.Param("slug"))
	if err != nil {
		httperr.Write(c, err)
		return ledger.Target{}, nil, false
	}
	if core == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "core not found"})
		return ledger.Target{}, nil, false
	}

	platform, err := h.catalog.GetPlatformBySlug(ctx, c.Param("platform"))
	if err != nil {
		httperr.Write(c, err)
		return ledger.Target{}, nil, false
	}
	if platform == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "platform not found"})
		return ledger.Target{}, nil, false
	}

	return ledger.Target{
		Kind:        models.ReleaseKindCore,
		ID:          core.ID,
		OwnerTeamID: core.OwnerTeamID,
	}, &platform.ID, true
}

// CreateSystemRelease publishes a new release for a system.
func (h *Handlers) CreateSystemRelease(c *gin.Context) {
	target, ok := h.resolveSystemTarget(c)
	if !ok {
		return
	}
	h.create(c, target, nil)
}

// CreateCoreRelease publishes a new release for a core on a platform.
func (h *Handlers) CreateCoreRelease(c *gin.Context) {
	target, platformID, ok := h.resolveCoreTarget(c)
	if !ok {
		return
	}
	h.create(c, target, platformID)
}

// externalFileSpec is the JSON shape of the optional "external" form field:
// artifacts hosted outside the object store, referenced by URL.
type externalFileSpec struct {
	Filename string  `json:"filename"`
	MimeType string  `json:"mime_type"`
	URL      string  `json:"url"`
	Size     int64   `json:"size"`
	SHA256   *string `json:"sha256"`
	SHA512   *string `json:"sha512"`
}

// create is the shared multipart publish flow. Uploaded files arrive under
// the "files" form field; release fields (version, notes, prerelease, links,
// metadata, released_at, external) are ordinary form values.
func (h *Handlers) create(c *gin.Context, target ledger.Target, platformID *int64) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	version := c.PostForm("version")
	if version == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version is required"})
		return
	}

	meta := ledger.Meta{
		Prerelease: c.PostForm("prerelease") == "true",
		ReleasedAt: time.Now().UTC(),
	}
	if notes := c.PostForm("notes"); notes != "" {
		meta.Notes = &notes
	}
	if links := c.PostForm("links"); links != "" {
		if !json.Valid([]byte(links)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "links must be valid JSON"})
			return
		}
		meta.Links = json.RawMessage(links)
	}
	if metadata := c.PostForm("metadata"); metadata != "" {
		if !json.Valid([]byte(metadata)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "metadata must be valid JSON"})
			return
		}
		meta.Metadata = json.RawMessage(metadata)
	}
	if raw := c.PostForm("released_at"); raw != "" {
		releasedAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "released_at must be RFC 3339"})
			return
		}
		meta.ReleasedAt = releasedAt
	}

	var external []ledger.ExternalFile
	if raw := c.PostForm("external"); raw != "" {
		var specs []externalFileSpec
		if err := json.Unmarshal([]byte(raw), &specs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "external must be a JSON array"})
			return
		}
		for _, spec := range specs {
			external = append(external, ledger.ExternalFile{
				Filename: spec.Filename,
				MimeType: spec.MimeType,
				URL:      spec.URL,
				Size:     spec.Size,
				SHA256:   spec.SHA256,
				SHA512:   spec.SHA512,
			})
		}
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	var files []ledger.File
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
			return
		}
		defer f.Close()
		files = append(files, ledger.File{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Content:  f,
		})
	}

	release, err := h.ledger.Create(c.Request.Context(), p, target, platformID, version, meta, files, external)
	if err != nil {
		if httperr.Status(err) == http.StatusConflict {
			telemetry.ReleaseVersionConflictsTotal.Inc()
		}
		httperr.Write(c, err)
		return
	}

	telemetry.ReleasesCreatedTotal.WithLabelValues(target.Kind).Inc()

	// The release committed, so the 201 stands even when reading back the
	// artifact rows fails. Clients can re-fetch the release for the listing.
	if rows, err := h.artifactRepo.ListForRelease(c.Request.Context(), release.ID); err != nil {
		slog.Warn("release created but artifact listing failed",
			"release_id", release.ID,
			"error", err,
			"request_id", middleware.GetRequestID(c))
	} else {
		release.Artifacts = rows
	}
	c.JSON(http.StatusCreated, release)
}

// ListSystemReleases lists a system's releases, newest version first.
func (h *Handlers) ListSystemReleases(c *gin.Context) {
	target, ok := h.resolveSystemTarget(c)
	if !ok {
		return
	}
	h.list(c, target, nil)
}

// ListCoreReleases lists a core's releases on a platform, newest first.
func (h *Handlers) ListCoreReleases(c *gin.Context) {
	target, platformID, ok := h.resolveCoreTarget(c)
	if !ok {
		return
	}
	h.list(c, target, platformID)
}

func (h *Handlers) list(c *gin.Context, target ledger.Target, platformID *int64) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	includeYanked := c.Query("include_yanked") == "true"

	var list []*models.Release
	err := httperr.RetryUnavailable(func() error {
		var err error
		list, err = h.ledger.List(c.Request.Context(), target, platformID, includeYanked, limit, offset)
		return err
	})
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"releases": list, "limit": limit, "offset": offset})
}

// LatestSystemRelease returns the newest active system release.
func (h *Handlers) LatestSystemRelease(c *gin.Context) {
	target, ok := h.resolveSystemTarget(c)
	if !ok {
		return
	}
	h.latest(c, target, nil)
}

// LatestCoreRelease returns the newest active core release on a platform.
func (h *Handlers) LatestCoreRelease(c *gin.Context) {
	target, platformID, ok := h.resolveCoreTarget(c)
	if !ok {
		return
	}
	h.latest(c, target, platformID)
}

func (h *Handlers) latest(c *gin.Context, target ledger.Target, platformID *int64) {
	includePrerelease := c.Query("include_prerelease") == "true"

	var release *models.Release
	err := httperr.RetryUnavailable(func() error {
		var err error
		release, err = h.ledger.Latest(c.Request.Context(), target, platformID, includePrerelease)
		return err
	})
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if release == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no releases"})
		return
	}

	if !h.attachArtifacts(c, release) {
		return
	}
	c.JSON(http.StatusOK, release)
}

// GetSystemRelease returns an exact system release version, yanked included.
func (h *Handlers) GetSystemRelease(c *gin.Context) {
	target, ok := h.resolveSystemTarget(c)
	if !ok {
		return
	}
	h.get(c, target, nil)
}

// GetCoreRelease returns an exact core release version, yanked included.
func (h *Handlers) GetCoreRelease(c *gin.Context) {
	target, platformID, ok := h.resolveCoreTarget(c)
	if !ok {
		return
	}
	h.get(c, target, platformID)
}

func (h *Handlers) get(c *gin.Context, target ledger.Target, platformID *int64) {
	release, ok := h.loadRelease(c, target, platformID)
	if !ok {
		return
	}
	if !h.attachArtifacts(c, release) {
		return
	}
	c.JSON(http.StatusOK, release)
}

// attachArtifacts fills in a release's artifact rows, writing the error
// response itself on failure.
func (h *Handlers) attachArtifacts(c *gin.Context, release *models.Release) bool {
	rows, err := h.artifactRepo.ListForRelease(c.Request.Context(), release.ID)
	if err != nil {
		httperr.Write(c, err)
		return false
	}
	release.Artifacts = rows
	return true
}

// loadRelease fetches the release named by the :version route parameter,
// writing the error response itself on failure.
func (h *Handlers) loadRelease(c *gin.Context, target ledger.Target, platformID *int64) (*models.Release, bool) {
	var release *models.Release
	err := httperr.RetryUnavailable(func() error {
		var err error
		release, err = h.ledger.Get(c.Request.Context(), target, platformID, c.Param("version"))
		return err
	})
	if err != nil {
		httperr.Write(c, err)
		return nil, false
	}
	return release, true
}

// YankSystemRelease withdraws a system release. One-way.
func (h *Handlers) YankSystemRelease(c *gin.Context) {
	target, ok := h.resolveSystemTarget(c)
	if !ok {
		return
	}
	h.yank(c, target, nil)
}

// YankCoreRelease withdraws a core release. One-way.
func (h *Handlers) YankCoreRelease(c *gin.Context) {
	target, platformID, ok := h.resolveCoreTarget(c)
	if !ok {
		return
	}
	h.yank(c, target, platformID)
}

func (h *Handlers) yank(c *gin.Context, target ledger.Target, platformID *int64) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	release, ok := h.loadRelease(c, target, platformID)
	if !ok {
		return
	}

	yanked, err := h.ledger.Yank(c.Request.Context(), p, release.ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	telemetry.ReleasesYankedTotal.WithLabelValues(target.Kind).Inc()
	c.JSON(http.StatusOK, yanked)
}

type editReleaseRequest struct {
	Notes      *string `json:"notes"`
	Promote    bool    `json:"promote"`
	Prerelease *bool   `json:"prerelease"`
}

// EditSystemRelease updates a system release's notes or promotes it out of
// prerelease.
func (h *Handlers) EditSystemRelease(c *gin.Context) {
	target, ok := h.resolveSystemTarget(c)
	if !ok {
		return
	}
	h.edit(c, target, nil)
}

// EditCoreRelease updates a core release's notes or promotes it out of
// prerelease.
func (h *Handlers) EditCoreRelease(c *gin.Context) {
	target, platformID, ok := h.resolveCoreTarget(c)
	if !ok {
		return
	}
	h.edit(c, target, platformID)
}

func (h *Handlers) edit(c *gin.Context, target ledger.Target, platformID *int64) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req editReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	release, ok := h.loadRelease(c, target, platformID)
	if !ok {
		return
	}

	edited, err := h.ledger.Edit(c.Request.Context(), p, release.ID, ledger.EditRequest{
		Notes:      req.Notes,
		Promote:    req.Promote,
		Prerelease: req.Prerelease,
	})
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, edited)
}

// DownloadSystemArtifact redirects to the bytes of a system release artifact.
func (h *Handlers) DownloadSystemArtifact(c *gin.Context) {
	target, ok := h.resolveSystemTarget(c)
	if !ok {
		return
	}
	h.download(c, target, nil)
}

// DownloadCoreArtifact redirects to the bytes of a core release artifact.
func (h *Handlers) DownloadCoreArtifact(c *gin.Context) {
	target, platformID, ok := h.resolveCoreTarget(c)
	if !ok {
		return
	}
	h.download(c, target, platformID)
}

// download resolves the artifact named by :artifact_id within the release and
// issues a 302 to its download URL: the recorded external URL, or a
// time-limited signed URL for the stored object.
func (h *Handlers) download(c *gin.Context, target ledger.Target, platformID *int64) {
	release, ok := h.loadRelease(c, target, platformID)
	if !ok {
		return
	}

	artifactID, err := strconv.ParseInt(c.Param("artifact_id"), 10, 64)
	if err != nil || artifactID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artifact id"})
		return
	}

	artifact, err := h.artifactRepo.GetForRelease(c.Request.Context(), release.ID, artifactID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if artifact == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}

	var url string
	err = httperr.RetryUnavailable(func() error {
		var err error
		url, err = h.store.DownloadURL(c.Request.Context(), artifact, h.downloadTTL)
		return err
	})
	if err != nil {
		httperr.Write(c, err)
		return
	}

	telemetry.ArtifactDownloadsTotal.WithLabelValues(target.Kind).Inc()
	c.Redirect(http.StatusFound, url)
}
