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

type createSystemRequest struct {
	Slug         string          `json:"slug" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	Description  string          `json:"description"`
	Manufacturer string          `json:"manufacturer"`
	Links        json.RawMessage `json:"links"`
	Metadata     json.RawMessage `json:"metadata"`
	OwnerTeamID  int64           `json:"owner_team_id" binding:"required"`
}

type updateSystemRequest struct {
	Name         string          `json:"name" binding:"required"`
	Description  string          `json:"description"`
	Manufacturer string          `json:"manufacturer"`
	Links        json.RawMessage `json:"links"`
	Metadata     json.RawMessage `json:"metadata"`
}

// ListSystems returns all systems, paginated.
func (h *Handlers) ListSystems(c *gin.Context) {
	limit, offset := pagination(c)
	systems, err := h.catalog.ListSystems(c.Request.Context(), limit, offset)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"systems": systems, "limit": limit, "offset": offset})
}

// GetSystem returns a single system by slug.
func (h *Handlers) GetSystem(c *gin.Context) {
	system, err := h.catalog.GetSystemBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if system == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "system not found"})
		return
	}
	c.JSON(http.StatusOK, system)
}

// CreateSystem registers a new emulated system owned by the requested team.
func (h *Handlers) CreateSystem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req createSystemRequest
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

	system := &models.System{
		Slug:         req.Slug,
		Name:         req.Name,
		Description:  req.Description,
		Manufacturer: req.Manufacturer,
		Links:        req.Links,
		Metadata:     req.Metadata,
		OwnerTeamID:  req.OwnerTeamID,
	}
	if err := h.catalog.CreateSystem(c.Request.Context(), system); err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "system slug already in use"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, system)
}

// UpdateSystem edits a system's metadata. The slug is immutable.
func (h *Handlers) UpdateSystem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	system, err := h.catalog.GetSystemBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if system == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "system not found"})
		return
	}
	if err := h.authz.Can(c.Request.Context(), p, auth.ActionManageCatalog, system.OwnerTeamID); err != nil {
		httperr.Write(c, err)
		return
	}

	var req updateSystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	system.Name = req.Name
	system.Description = req.Description
	system.Manufacturer = req.Manufacturer
	system.Links = req.Links
	system.Metadata = req.Metadata
	if err := h.catalog.UpdateSystem(c.Request.Context(), system); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, system)
}

// TransferSystem re-homes a system to another team.
func (h *Handlers) TransferSystem(c *gin.Context) {
	h.transfer(c, "systems", func(slug string) (int64, int64, error) {
		system, err := h.catalog.GetSystemBySlug(c.Request.Context(), slug)
		if err != nil || system == nil {
			return 0, 0, notFoundOr(err, "system not found")
		}
		return system.ID, system.OwnerTeamID, nil
	})
}
