package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corevault-registry/corevault-registry/internal/api/httperr"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/validation"
)

type createCoreRequest struct {
	Slug        string          `json:"slug" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	SystemSlug  string          `json:"system" binding:"required"`
	Links       json.RawMessage `json:"links"`
	Metadata    json.RawMessage `json:"metadata"`
	OwnerTeamID int64           `json:"owner_team_id" binding:"required"`
}

type updateCoreRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Links       json.RawMessage `json:"links"`
	Metadata    json.RawMessage `json:"metadata"`
}

// ListCores returns cores, optionally filtered with ?system=<slug>.
func (h *Handlers) ListCores(c *gin.Context) {
	limit, offset := pagination(c)

	var systemID *int64
	if slug := c.Query("system"); slug != "" {
		system, err := h.catalog.GetSystemBySlug(c.Request.Context(), slug)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		if system == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "system not found"})
			return
		}
		systemID = &system.ID
	}

	cores, err := h.catalog.ListCores(c.Request.Context(), systemID, limit, offset)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cores": cores, "limit": limit, "offset": offset})
}

// GetCore returns a single core by slug.
func (h *Handlers) GetCore(c *gin.Context) {
	core, err := h.catalog.GetCoreBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if core == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "core not found"})
		return
	}
	c.JSON(http.StatusOK, core)
}

// CreateCore registers a new emulator core for an existing system.
func (h *Handlers) CreateCore(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req createCoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateSlug(req.Slug); err != nil {
		httperr.Write(c, err)
		return
	}

	system, err := h.catalog.GetSystemBySlug(c.Request.Context(), req.SystemSlug)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if system == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "system not found"})
		return
	}

	if err := h.authz.Can(c.Request.Context(), p, auth.ActionManageCatalog, req.OwnerTeamID); err != nil {
		httperr.Write(c, err)
		return
	}

	core := &models.Core{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		SystemID:    system.ID,
		Links:       req.Links,
		Metadata:    req.Metadata,
		OwnerTeamID: req.OwnerTeamID,
	}
	if err := h.catalog.CreateCore(c.Request.Context(), core); err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "core slug already in use"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, core)
}

// UpdateCore edits a core's metadata. Slug and system are immutable.
func (h *Handlers) UpdateCore(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	core, err := h.catalog.GetCoreBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if core == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "core not found"})
		return
	}
	if err := h.authz.Can(c.Request.Context(), p, auth.ActionManageCatalog, core.OwnerTeamID); err != nil {
		httperr.Write(c, err)
		return
	}

	var req updateCoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	core.Name = req.Name
	core.Description = req.Description
	core.Links = req.Links
	core.Metadata = req.Metadata
	if err := h.catalog.UpdateCore(c.Request.Context(), core); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, core)
}

// TransferCore re-homes a core to another team.
func (h *Handlers) TransferCore(c *gin.Context) {
	h.transfer(c, "cores", func(slug string) (int64, int64, error) {
		core, err := h.catalog.GetCoreBySlug(c.Request.Context(), slug)
		if err != nil || core == nil {
			return 0, 0, notFoundOr(err, "core not found")
		}
		return core.ID, core.OwnerTeamID, nil
	})
}
