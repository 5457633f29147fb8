package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/corevault-registry/corevault-registry/internal/api/httperr"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
)

type createGameRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	ShortName   string          `json:"short_name"`
	Year        *int            `json:"year"`
	Publisher   *string         `json:"publisher"`
	SystemSlug  string          `json:"system" binding:"required"`
	Links       json.RawMessage `json:"links"`
}

type updateGameRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	ShortName   string          `json:"short_name"`
	Year        *int            `json:"year"`
	Publisher   *string         `json:"publisher"`
	Links       json.RawMessage `json:"links"`
}

// gameID parses the :id path parameter.
func gameID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return 0, false
	}
	return id, true
}

// ListGames returns games, optionally filtered with ?system=<slug>.
func (h *Handlers) ListGames(c *gin.Context) {
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

	games, err := h.catalog.ListGames(c.Request.Context(), systemID, limit, offset)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games, "limit": limit, "offset": offset})
}

// GetGame returns a single game by id.
func (h *Handlers) GetGame(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}
	game, err := h.catalog.GetGameByID(c.Request.Context(), id)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if game == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	c.JSON(http.StatusOK, game)
}

// CreateGame catalogues a game title under a system. Games have no owning
// team of their own; permission follows the system's owner.
func (h *Handlers) CreateGame(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
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
	if err := h.authz.Can(c.Request.Context(), p, auth.ActionManageCatalog, system.OwnerTeamID); err != nil {
		httperr.Write(c, err)
		return
	}

	game := &models.Game{
		Name:        req.Name,
		Description: req.Description,
		ShortName:   req.ShortName,
		Year:        req.Year,
		Publisher:   req.Publisher,
		SystemID:    system.ID,
		Links:       req.Links,
	}
	if err := h.catalog.CreateGame(c.Request.Context(), game); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, game)
}

// UpdateGame edits a game's fields. The system association is immutable.
func (h *Handlers) UpdateGame(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := gameID(c)
	if !ok {
		return
	}

	game, err := h.catalog.GetGameByID(c.Request.Context(), id)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if game == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}

	system, err := h.catalog.GetSystemByID(c.Request.Context(), game.SystemID)
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

	var req updateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game.Name = req.Name
	game.Description = req.Description
	game.ShortName = req.ShortName
	game.Year = req.Year
	game.Publisher = req.Publisher
	game.Links = req.Links
	if err := h.catalog.UpdateGame(c.Request.Context(), game); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, game)
}
