package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corevault-registry/corevault-registry/internal/api/httperr"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/validation"
)

type createTagRequest struct {
	Slug        string `json:"slug" binding:"required"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type attachTagRequest struct {
	Tag string `json:"tag" binding:"required"`
}

// ListTags returns all tags, paginated.
func (h *Handlers) ListTags(c *gin.Context) {
	limit, offset := pagination(c)
	tags, err := h.tags.ListTags(c.Request.Context(), limit, offset)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags, "limit": limit, "offset": offset})
}

// GetTag returns a single tag by slug.
func (h *Handlers) GetTag(c *gin.Context) {
	tag, err := h.tags.GetTagBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if tag == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tag not found"})
		return
	}
	c.JSON(http.StatusOK, tag)
}

// CreateTag registers a new global tag. Tags are shared across the whole
// catalog, so creation is scoped to catalog managers on the root team.
func (h *Handlers) CreateTag(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req createTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateSlug(req.Slug); err != nil {
		httperr.Write(c, err)
		return
	}
	if req.Color < 0 || req.Color > 0xFFFFFF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "color must be a 24-bit RGB value"})
		return
	}
	if err := h.authz.Can(c.Request.Context(), p, auth.ActionManageCatalog, h.rootTeamID); err != nil {
		httperr.Write(c, err)
		return
	}

	tag := &models.Tag{
		Slug:        req.Slug,
		Description: req.Description,
		Color:       req.Color,
	}
	if err := h.tags.CreateTag(c.Request.Context(), tag); err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "tag slug already in use"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

// resolveTaggable locates the tagged entity for a given kind from the route
// parameters and returns its id plus the team whose permission gates tag
// changes. Writes the error response itself on failure.
func (h *Handlers) resolveTaggable(c *gin.Context, kind string) (int64, int64, bool) {
	ctx := c.Request.Context()
	switch kind {
	case "platform":
		platform, err := h.catalog.GetPlatformBySlug(ctx, c.Param("slug"))
		if err != nil {
			httperr.Write(c, err)
			return 0, 0, false
		}
		if platform == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "platform not found"})
			return 0, 0, false
		}
		return platform.ID, platform.OwnerTeamID, true
	case "system":
		system, err := h.catalog.GetSystemBySlug(ctx, c.Param("slug"))
		if err != nil {
			httperr.Write(c, err)
			return 0, 0, false
		}
		if system == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "system not found"})
			return 0, 0, false
		}
		return system.ID, system.OwnerTeamID, true
	case "core":
		core, err := h.catalog.GetCoreBySlug(ctx, c.Param("slug"))
		if err != nil {
			httperr.Write(c, err)
			return 0, 0, false
		}
		if core == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "core not found"})
			return 0, 0, false
		}
		return core.ID, core.OwnerTeamID, true
	case "game":
		id, ok := gameID(c)
		if !ok {
			return 0, 0, false
		}
		game, err := h.catalog.GetGameByID(ctx, id)
		if err != nil {
			httperr.Write(c, err)
			return 0, 0, false
		}
		if game == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
			return 0, 0, false
		}
		system, err := h.catalog.GetSystemByID(ctx, game.SystemID)
		if err != nil {
			httperr.Write(c, err)
			return 0, 0, false
		}
		if system == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "system not found"})
			return 0, 0, false
		}
		return game.ID, system.OwnerTeamID, true
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return 0, 0, false
	}
}

// ListEntityTags returns a handler listing the tags attached to an entity of
// the given kind.
func (h *Handlers) ListEntityTags(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		entityID, _, ok := h.resolveTaggable(c, kind)
		if !ok {
			return
		}
		tags, err := h.tags.ListFor(c.Request.Context(), kind, entityID)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tags": tags})
	}
}

// AttachTag returns a handler attaching an existing tag to an entity of the
// given kind. Attaching an already-attached tag is a no-op.
func (h *Handlers) AttachTag(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		var req attachTagRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		entityID, ownerTeamID, ok := h.resolveTaggable(c, kind)
		if !ok {
			return
		}
		if err := h.authz.Can(c.Request.Context(), p, auth.ActionManageCatalog, ownerTeamID); err != nil {
			httperr.Write(c, err)
			return
		}

		tag, err := h.tags.GetTagBySlug(c.Request.Context(), req.Tag)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		if tag == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "tag not found"})
			return
		}

		if err := h.tags.Attach(c.Request.Context(), kind, entityID, tag.ID); err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"attached": true, "tag": tag.Slug})
	}
}

// DetachTag returns a handler detaching a tag from an entity of the given
// kind. Detaching a tag that is not attached is a no-op.
func (h *Handlers) DetachTag(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		entityID, ownerTeamID, ok := h.resolveTaggable(c, kind)
		if !ok {
			return
		}
		if err := h.authz.Can(c.Request.Context(), p, auth.ActionManageCatalog, ownerTeamID); err != nil {
			httperr.Write(c, err)
			return
		}

		tag, err := h.tags.GetTagBySlug(c.Request.Context(), c.Param("tag"))
		if err != nil {
			httperr.Write(c, err)
			return
		}
		if tag == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "tag not found"})
			return
		}

		if err := h.tags.Detach(c.Request.Context(), kind, entityID, tag.ID); err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"detached": true, "tag": tag.Slug})
	}
}
