// Package teams implements the HTTP handlers for teams and memberships: team
// CRUD, member listings, the invite/accept flow, and member removal. Teams
// are the permission-scoping unit; the creator of a team is seated as its
// first owner.
package teams

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/corevault-registry/corevault-registry/internal/api/httperr"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/db/repositories"
	"github.com/corevault-registry/corevault-registry/internal/middleware"
	"github.com/corevault-registry/corevault-registry/internal/validation"
)

// Handlers bundles the team endpoints and their dependencies.
type Handlers struct {
	teams *repositories.TeamRepository
	users *repositories.UserRepository
	authz *auth.Authorizer
}

// NewHandlers creates the team handler set.
func NewHandlers(teams *repositories.TeamRepository, users *repositories.UserRepository, authz *auth.Authorizer) *Handlers {
	return &Handlers{teams: teams, users: users, authz: authz}
}

func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return auth.Principal{}, false
	}
	return p, true
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// loadTeam fetches the team named by the :slug route parameter, writing the
// error response itself on failure.
func (h *Handlers) loadTeam(c *gin.Context) (*models.Team, bool) {
	team, err := h.teams.GetTeamBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		httperr.Write(c, err)
		return nil, false
	}
	if team == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
		return nil, false
	}
	return team, true
}

type createTeamRequest struct {
	Slug        string          `json:"slug" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Links       json.RawMessage `json:"links"`
	Metadata    json.RawMessage `json:"metadata"`
}

type updateTeamRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Links       json.RawMessage `json:"links"`
	Metadata    json.RawMessage `json:"metadata"`
}

type inviteRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// ListTeams returns all teams, paginated.
func (h *Handlers) ListTeams(c *gin.Context) {
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

	teams, err := h.teams.ListTeams(c.Request.Context(), limit, offset)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams, "limit": limit, "offset": offset})
}

// GetTeam returns a single team by slug.
func (h *Handlers) GetTeam(c *gin.Context) {
	team, ok := h.loadTeam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, team)
}

// CreateTeam registers a team and seats the caller as its first owner. Open
// to any authenticated principal.
func (h *Handlers) CreateTeam(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req createTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateSlug(req.Slug); err != nil {
		httperr.Write(c, err)
		return
	}

	team := &models.Team{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Links:       req.Links,
		Metadata:    req.Metadata,
	}
	// One transaction covers the team row and the creator's owner seat, so a
	// failed membership insert never strands an ownerless team.
	err := h.teams.CreateTeamWithOwner(c.Request.Context(), team, p.UserID, auth.RoleOwner.String())
	if err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "team slug already in use"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, team)
}

// UpdateTeam edits a team's metadata. Owner only; the slug is immutable.
func (h *Handlers) UpdateTeam(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	team, ok := h.loadTeam(c)
	if !ok {
		return
	}
	if err := h.authz.Can(c.Request.Context(), p, auth.ActionUpdateTeam, team.ID); err != nil {
		httperr.Write(c, err)
		return
	}

	var req updateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	team.Name = req.Name
	team.Description = req.Description
	team.Links = req.Links
	team.Metadata = req.Metadata
	if err := h.teams.UpdateTeam(c.Request.Context(), team); err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, team)
}

// DeleteTeam removes a team. Owner only. Fails with 409 while the team still
// owns catalog resources or releases.
func (h *Handlers) DeleteTeam(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	team, ok := h.loadTeam(c)
	if !ok {
		return
	}
	if team.IsRoot() {
		c.JSON(http.StatusForbidden, gin.H{"error": "the root team cannot be deleted"})
		return
	}
	if err := h.authz.Can(c.Request.Context(), p, auth.ActionDeleteTeam, team.ID); err != nil {
		httperr.Write(c, err)
		return
	}

	if err := h.teams.DeleteTeam(c.Request.Context(), team.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			c.JSON(http.StatusConflict, gin.H{"error": "team still owns resources"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ListMembers returns a team's membership roster, pending invites included.
func (h *Handlers) ListMembers(c *gin.Context) {
	team, ok := h.loadTeam(c)
	if !ok {
		return
	}
	members, err := h.teams.ListMembers(c.Request.Context(), team.ID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// InviteMember records a pending invitation. Owners invite any role, admins
// only members; on the root team only owners may invite.
func (h *Handlers) InviteMember(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	team, ok := h.loadTeam(c)
	if !ok {
		return
	}

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.authz.CanInvite(ctx, p, team.ID, role); err != nil {
		httperr.Write(c, err)
		return
	}

	invitee, err := h.users.GetUserByID(ctx, req.UserID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	if invitee == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	if err := h.teams.CreateInvite(ctx, team.ID, req.UserID, p.UserID, role.String()); err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "user is already a member or invitee"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invited": true, "user_id": req.UserID, "role": role.String()})
}

// AcceptInvite turns the caller's pending invitation into a membership.
func (h *Handlers) AcceptInvite(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	team, ok := h.loadTeam(c)
	if !ok {
		return
	}

	if err := h.teams.AcceptInvite(c.Request.Context(), team.ID, p.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no pending invitation"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// RemoveMember deletes a membership or pending invitation. Members may leave
// on their own; removing someone else requires the standing to have invited
// them at their current role.
func (h *Handlers) RemoveMember(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	team, ok := h.loadTeam(c)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ctx := c.Request.Context()
	if userID != p.UserID {
		membership, err := h.teams.GetMembership(ctx, team.ID, userID)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		if membership == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not a member"})
			return
		}
		role, err := auth.ParseRole(membership.Role)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		if err := h.authz.CanInvite(ctx, p, team.ID, role); err != nil {
			httperr.Write(c, err)
			return
		}
	}

	if err := h.teams.RemoveMember(ctx, team.ID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not a member"})
			return
		}
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// ListMyMemberships returns the caller's memberships across all teams,
// pending invitations included.
func (h *Handlers) ListMyMemberships(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	memberships, err := h.teams.ListMembershipsForUser(c.Request.Context(), p.UserID)
	if err != nil {
		httperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memberships": memberships})
}
