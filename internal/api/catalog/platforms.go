package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corevault-registry/corevault-registry/internal/api/httperr"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/validation"
)

type createPlatformRequest struct {
	Slug        string          `json:"slug" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Links       json.RawMessage `json:"links"`
	Metadata    json.RawMessage `json:"metadata"`
	OwnerTeamID int64           `json:"owner_team_id" binding:"required"`
}

type updatePlatformRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Links       json.RawMessage `json:"links"`
	Metadata    json.RawMessage `json:"metadata"`
}

type transferRequest struct {
	TeamID int64 `json:"team_id" binding:"required"`
}

// ListPlatforms returns all platforms, paginated.
func (h *Handlers) ListPlatforms(c *gin.Context) {
	limit, offset := pagination(c)
	platforms, err := h.catalog.ListPlatforms(c.Request.Context(), limit, offset)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"platforms": platforms, "limit": limit, "offset": offset})
}

// GetPlatform returns a single platform by slug.
func (h *Handlers) GetPlatform(c *gin.Context) {
	platform, err := h.catalog.GetPlatformBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if platform == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "platform not found"})
		return
	}
	c.JSON(http.StatusOK, platform)
}

// CreatePlatform registers a new platform owned by the requested team.
func (h *Handlers) CreatePlatform(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req createPlatformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateSlug(req.Slug); err != nil {
		httperr.Write(c, err)
		return
	}
	if err := h.authz.Can(c.Request.Context(), p, auth.ActionManageCatalog, req.OwnerTeamID); err != nil {
		httperr.Write(c, err)
		return
	}

	platform := &models.Platform{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Links:       req.Links,
		Metadata:    req.Metadata,
		OwnerTeamID: req.OwnerTeamID,
	}
	if err := h.catalog.CreatePlatform(c.Request.Context(), platform); err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "platform slug already in use"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, platform)
}

// UpdatePlatform edits a platform's metadata. The slug is immutable.
func (h *Handlers) UpdatePlatform(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	platform, err := h.catalog.GetPlatformBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if platform == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "platform not found"})
		return
	}
	if err := h.authz.Can(c.Request.Context(), p, auth.ActionManageCatalog, platform.OwnerTeamID); err != nil {
		httperr.Write(c, err)
		return
	}

	var req updatePlatformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	platform.Name = req.Name
	platform.Description = req.Description
	platform.Links = req.Links
	platform.Metadata = req.Metadata
	if err := h.catalog.UpdatePlatform(c.Request.Context(), platform); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, platform)
}

// TransferPlatform re-homes a platform to another team. The caller must hold
// catalog-management rights on both the current and the destination team;
// existing releases keep the team that published them.
func (h *Handlers) TransferPlatform(c *gin.Context) {
	h.transfer(c, "platforms", func(slug string) (int64, int64, error) {
		platform, err := h.catalog.GetPlatformBySlug(c.Request.Context(), slug)
		if err != nil || platform == nil {
			return 0, 0, notFoundOr(err, "platform not found")
		}
		return platform.ID, platform.OwnerTeamID, nil
	})
}

// notFoundErr carries a resource-specific 404 message through the shared
// transfer helper.
type notFoundErr struct{ msg string }

func (e *notFoundErr) Error() string { return e.msg }

func notFoundOr(err error, msg string) error {
	if err != nil {
		return err
	}
	return &notFoundErr{msg: msg}
}

// transfer implements the shared ownership-transfer flow for platforms,
// systems, and cores.
func (h *Handlers) transfer(c *gin.Context, table string, resolve func(slug string) (id, ownerTeamID int64, err error)) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, ownerTeamID, err := resolve(c.Param("slug"))
	if err != nil {
		var nf *notFoundErr
		if errors.As(err, &nf) {
			c.JSON(http.StatusNotFound, gin.H{"error": nf.msg})
			return
		}
		httperr.Write(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.authz.Can(ctx, p, auth.ActionManageCatalog, ownerTeamID); err != nil {
		httperr.Write(c, err)
		return
	}
	if err := h.authz.Can(ctx, p, auth.ActionManageCatalog, req.TeamID); err != nil {
		httperr.Write(c, err)
		return
	}

	if err := h.catalog.TransferOwnership(ctx, table, id, req.TeamID); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transferred": true, "owner_team_id": req.TeamID})
}
