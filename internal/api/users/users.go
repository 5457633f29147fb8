// Package users implements the HTTP handlers for the user self-service
// surface: session issue, profile lookup, username claim, and API key
// management. Identity is established upstream; the session endpoint creates
// the user row on first login with only an email, matching the users table
// contract.
package users

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/corevault-registry/corevault-registry/internal/api/httperr"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/config"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/db/repositories"
	"github.com/corevault-registry/corevault-registry/internal/middleware"
	"github.com/corevault-registry/corevault-registry/internal/validation"
)

// Handlers bundles the user endpoints and their dependencies.
type Handlers struct {
	users   *repositories.UserRepository
	apiKeys *repositories.APIKeyRepository
	cfg     *config.Config
}

// NewHandlers creates the user handler set.
func NewHandlers(users *repositories.UserRepository, apiKeys *repositories.APIKeyRepository, cfg *config.Config) *Handlers {
	return &Handlers{users: users, apiKeys: apiKeys, cfg: cfg}
}

func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return auth.Principal{}, false
	}
	return p, true
}

type sessionRequest struct {
	Email string `json:"email" binding:"required"`
}

// CreateSession issues a session token for an email, creating the user row on
// first login. This endpoint sits behind the strict auth rate limiter; the
// identity itself is asserted by the deployment's fronting proxy, which is
// the only party allowed to reach it.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetUserByEmail(ctx, email)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if user == nil {
		user = &models.User{Email: email}
		if err := h.users.CreateUser(ctx, user); err != nil {
			httperr.Write(c, err)
			return
		}
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, h.cfg.Auth.SessionTTL)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"user":       user,
		"expires_in": int64(h.cfg.Auth.SessionTTL.Seconds()),
	})
}

// Me returns the authenticated caller's profile.
func (h *Handlers) Me(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	user, err := h.users.GetUserByID(c.Request.Context(), p.UserID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type claimUsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

// ClaimUsername sets the caller's username. Usernames follow the slug
// grammar and are unique once claimed.
func (h *Handlers) ClaimUsername(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req claimUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateSlug(req.Username); err != nil {
		httperr.Write(c, err)
		return
	}

	if err := h.users.SetUsername(c.Request.Context(), p.UserID, req.Username); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": req.Username})
}

type createAPIKeyRequest struct {
	Name      string `json:"name" binding:"required"`
	ExpiresIn string `json:"expires_in"`
}

// CreateAPIKey mints an API key for the caller. The plaintext key appears in
// this response and nowhere else; only its bcrypt hash is stored.
func (h *Handlers) CreateAPIKey(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_in must be a positive duration"})
			return
		}
		t := time.Now().UTC().Add(d)
		expiresAt = &t
	}

	key, hash, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		httperr.Write(c, err)
		return
	}

	apiKey := &models.APIKey{
		UserID:    p.UserID,
		Name:      req.Name,
		KeyPrefix: prefix,
		KeyHash:   hash,
		ExpiresAt: expiresAt,
	}
	if err := h.apiKeys.CreateAPIKey(c.Request.Context(), apiKey); err != nil {
		httperr.Write(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":     key,
		"api_key": apiKey,
	})
}

// ListAPIKeys returns the caller's API keys. Hashes never leave the server.
func (h *Handlers) ListAPIKeys(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	keys, err := h.apiKeys.ListAPIKeysForUser(c.Request.Context(), p.UserID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

// DeleteAPIKey revokes one of the caller's API keys. The user scoping in the
// repository means a key id belonging to someone else reads as not found.
func (h *Handlers) DeleteAPIKey(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	keyID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || keyID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid api key id"})
		return
	}

	if err := h.apiKeys.DeleteAPIKey(c.Request.Context(), keyID, p.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "api key not found"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
