// Package auth - authorizer.go implements the permission engine. Every
// mutating operation in the registry funnels through Can or CanInvite, which
// map (action, effective role) through a fixed table. Members of the root
// team with the owner role, and principals whose email matches a configured
// root pattern, pass every check.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/corevault-registry/corevault-registry/internal/db/models"
)

// ErrForbidden is the single denial value. Handlers translate it to 403;
// nothing in the engine panics or logs on denial.
var ErrForbidden = errors.New("forbidden")

// Action enumerates the operations the permission table covers.
type Action string

const (
	ActionCreateTeam    Action = "team:create"
	ActionUpdateTeam    Action = "team:update"
	ActionDeleteTeam    Action = "team:delete"
	ActionManageCatalog Action = "catalog:manage"
	ActionCreateRelease Action = "release:create"
	ActionYankRelease   Action = "release:yank"
	ActionEditRelease   Action = "release:edit"
)

// minimumRole is the permission table: the lowest role on the owning team
// that may perform each action. Invites are handled separately because the
// answer depends on the invited role.
var minimumRole = map[Action]Role{
	ActionUpdateTeam:    RoleOwner,
	ActionDeleteTeam:    RoleOwner,
	ActionManageCatalog: RoleAdmin,
	ActionCreateRelease: RoleMember,
	ActionYankRelease:   RoleMember,
	ActionEditRelease:   RoleMember,
}

// Principal identifies an authenticated caller, whether the credential was a
// session token or an API key.
type Principal struct {
	UserID int64
	Email  string
}

// MembershipReader is the slice of the team repository the authorizer needs.
type MembershipReader interface {
	GetMembership(ctx context.Context, teamID, userID int64) (*models.TeamMember, error)
}

// Options configures an Authorizer. RootEmails entries are glob patterns
// ("*@corp.example.com", "ops-?@example.org"); they are compiled once at
// construction and never reloaded.
type Options struct {
	RootTeamID int64
	RootEmails []string
}

// Authorizer answers permission questions. It is immutable after New and
// safe for concurrent use.
type Authorizer struct {
	memberships MembershipReader
	rootTeamID  int64
	rootEmails  []glob.Glob
}

// NewAuthorizer compiles the root email patterns and returns the engine.
func NewAuthorizer(memberships MembershipReader, opts Options) (*Authorizer, error) {
	rootTeamID := opts.RootTeamID
	if rootTeamID == 0 {
		rootTeamID = models.RootTeamID
	}

	patterns := make([]glob.Glob, 0, len(opts.RootEmails))
	for _, raw := range opts.RootEmails {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		g, err := glob.Compile(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid root email pattern %q: %w", raw, err)
		}
		patterns = append(patterns, g)
	}

	return &Authorizer{
		memberships: memberships,
		rootTeamID:  rootTeamID,
		rootEmails:  patterns,
	}, nil
}

// isRootEmail reports whether the principal's email matches a configured
// root pattern. Matching is case-insensitive on the whole address.
func (a *Authorizer) isRootEmail(p Principal) bool {
	email := strings.ToLower(p.Email)
	for _, g := range a.rootEmails {
		if g.Match(email) {
			return true
		}
	}
	return false
}

// EffectiveRole resolves the principal's role on a team. Root email
// principals are implicit owners of the root team, checked before any
// membership lookup. Pending invites carry no role.
func (a *Authorizer) EffectiveRole(ctx context.Context, p Principal, teamID int64) (Role, bool, error) {
	if teamID == a.rootTeamID && a.isRootEmail(p) {
		return RoleOwner, true, nil
	}

	membership, err := a.memberships.GetMembership(ctx, teamID, p.UserID)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve membership: %w", err)
	}
	if membership == nil || membership.Pending() {
		return "", false, nil
	}

	role, err := ParseRole(membership.Role)
	if err != nil {
		return "", false, fmt.Errorf("%w: team %d user %d holds %q", ErrUnknownRole, teamID, p.UserID, membership.Role)
	}
	return role, true, nil
}

// IsRootOwner reports whether the principal holds owner on the root team,
// by membership or by root email.
func (a *Authorizer) IsRootOwner(ctx context.Context, p Principal) (bool, error) {
	role, ok, err := a.EffectiveRole(ctx, p, a.rootTeamID)
	if err != nil {
		return false, err
	}
	return ok && role == RoleOwner, nil
}

// Can checks the permission table for an action against the resource's
// owning team. ActionCreateTeam is open to any authenticated principal.
// A root-team owner passes every check regardless of the owning team.
func (a *Authorizer) Can(ctx context.Context, p Principal, action Action, ownerTeamID int64) error {
	if action == ActionCreateTeam {
		return nil
	}

	required, ok := minimumRole[action]
	if !ok {
		return fmt.Errorf("unknown action: %q", action)
	}

	if root, err := a.IsRootOwner(ctx, p); err != nil {
		return err
	} else if root {
		return nil
	}

	role, ok, err := a.EffectiveRole(ctx, p, ownerTeamID)
	if err != nil {
		return err
	}
	if !ok || !role.AtLeast(required) {
		return ErrForbidden
	}
	return nil
}

// CanInvite checks whether the principal may invite a new member at the
// given role. Owners invite any role; admins invite strictly lower roles
// (member only); on the root team only owners may invite at all.
func (a *Authorizer) CanInvite(ctx context.Context, p Principal, teamID int64, invitedRole Role) error {
	if !invitedRole.Valid() {
		return fmt.Errorf("invalid invited role: %q", invitedRole)
	}

	if root, err := a.IsRootOwner(ctx, p); err != nil {
		return err
	} else if root {
		return nil
	}

	role, ok, err := a.EffectiveRole(ctx, p, teamID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}

	if teamID == a.rootTeamID {
		if role != RoleOwner {
			return ErrForbidden
		}
		return nil
	}

	switch role {
	case RoleOwner:
		return nil
	case RoleAdmin:
		if role.Above(invitedRole) {
			return nil
		}
	}
	return ErrForbidden
}
