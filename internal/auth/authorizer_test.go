package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/corevault-registry/corevault-registry/internal/db/models"
)

// membershipKey identifies one (team, user) membership row.
type membershipKey struct {
	teamID, userID int64
}

// fakeMemberships is an in-memory MembershipReader.
type fakeMemberships struct {
	rows map[membershipKey]*models.TeamMember
	err  error
}

func (f *fakeMemberships) GetMembership(_ context.Context, teamID, userID int64) (*models.TeamMember, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[membershipKey{teamID, userID}], nil
}

func (f *fakeMemberships) add(teamID, userID int64, role string) {
	if f.rows == nil {
		f.rows = map[membershipKey]*models.TeamMember{}
	}
	f.rows[membershipKey{teamID, userID}] = &models.TeamMember{
		TeamID: teamID,
		UserID: userID,
		Role:   role,
	}
}

func (f *fakeMemberships) addPending(teamID, userID, inviterID int64, role string) {
	f.add(teamID, userID, role)
	f.rows[membershipKey{teamID, userID}].InvitedBy = &inviterID
}

func newTestAuthorizer(t *testing.T, members *fakeMemberships, rootEmails ...string) *Authorizer {
	t.Helper()
	a, err := NewAuthorizer(members, Options{RootEmails: rootEmails})
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}
	return a
}

func TestNewAuthorizerRejectsBadPattern(t *testing.T) {
	_, err := NewAuthorizer(&fakeMemberships{}, Options{RootEmails: []string{"[unterminated"}})
	if err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}

func TestEffectiveRole(t *testing.T) {
	members := &fakeMemberships{}
	members.add(5, 10, "admin")
	members.addPending(6, 10, 99, "member")
	a := newTestAuthorizer(t, members)

	ctx := context.Background()
	p := Principal{UserID: 10, Email: "dev@example.com"}

	role, ok, err := a.EffectiveRole(ctx, p, 5)
	if err != nil || !ok || role != RoleAdmin {
		t.Errorf("EffectiveRole(team 5) = %q, %v, %v; want admin", role, ok, err)
	}

	// Pending invite carries no role until accepted.
	_, ok, err = a.EffectiveRole(ctx, p, 6)
	if err != nil || ok {
		t.Errorf("EffectiveRole(pending) ok = %v, err = %v; want no role", ok, err)
	}

	_, ok, err = a.EffectiveRole(ctx, p, 7)
	if err != nil || ok {
		t.Errorf("EffectiveRole(no membership) ok = %v, err = %v; want no role", ok, err)
	}
}

func TestEffectiveRoleRootEmail(t *testing.T) {
	a := newTestAuthorizer(t, &fakeMemberships{}, "*@corp.example.com")
	ctx := context.Background()

	p := Principal{UserID: 1, Email: "Alice@Corp.Example.Com"}

	role, ok, err := a.EffectiveRole(ctx, p, models.RootTeamID)
	if err != nil || !ok || role != RoleOwner {
		t.Errorf("root email on root team = %q, %v, %v; want owner", role, ok, err)
	}

	// The pattern grants root-team ownership, not direct membership in
	// arbitrary teams.
	_, ok, err = a.EffectiveRole(ctx, p, 5)
	if err != nil || ok {
		t.Errorf("root email on other team ok = %v, err = %v; want no role", ok, err)
	}

	// Root-team owner still passes every permission check everywhere.
	if err := a.Can(ctx, p, ActionDeleteTeam, 5); err != nil {
		t.Errorf("Can(delete team) for root email: %v", err)
	}
}

func TestCanPermissionTable(t *testing.T) {
	members := &fakeMemberships{}
	members.add(5, 1, "owner")
	members.add(5, 2, "admin")
	members.add(5, 3, "member")
	a := newTestAuthorizer(t, members)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID int64
		action Action
		want   bool
	}{
		{"owner updates team", 1, ActionUpdateTeam, true},
		{"admin cannot update team", 2, ActionUpdateTeam, false},
		{"owner deletes team", 1, ActionDeleteTeam, true},
		{"member cannot delete team", 3, ActionDeleteTeam, false},
		{"admin manages catalog", 2, ActionManageCatalog, true},
		{"member cannot manage catalog", 3, ActionManageCatalog, false},
		{"member creates release", 3, ActionCreateRelease, true},
		{"member yanks release", 3, ActionYankRelease, true},
		{"member edits release", 3, ActionEditRelease, true},
		{"outsider cannot create release", 99, ActionCreateRelease, false},
		{"anyone creates a team", 99, ActionCreateTeam, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Principal{UserID: tt.userID, Email: "u@example.com"}
			err := a.Can(ctx, p, tt.action, 5)
			if tt.want && err != nil {
				t.Errorf("Can() = %v, want allow", err)
			}
			if !tt.want && !errors.Is(err, ErrForbidden) {
				t.Errorf("Can() = %v, want ErrForbidden", err)
			}
		})
	}
}

func TestRootTeamOwnerPassesEverything(t *testing.T) {
	members := &fakeMemberships{}
	members.add(models.RootTeamID, 1, "owner")
	members.add(models.RootTeamID, 2, "admin")
	a := newTestAuthorizer(t, members)
	ctx := context.Background()

	rootOwner := Principal{UserID: 1, Email: "root@example.com"}
	if err := a.Can(ctx, rootOwner, ActionDeleteTeam, 42); err != nil {
		t.Errorf("root-team owner denied: %v", err)
	}

	// Admin on the root team is not the escape hatch; only owner is.
	rootAdmin := Principal{UserID: 2, Email: "almost@example.com"}
	if err := a.Can(ctx, rootAdmin, ActionDeleteTeam, 42); !errors.Is(err, ErrForbidden) {
		t.Errorf("root-team admin on foreign team = %v, want ErrForbidden", err)
	}
}

func TestCanInvite(t *testing.T) {
	members := &fakeMemberships{}
	members.add(5, 1, "owner")
	members.add(5, 2, "admin")
	members.add(5, 3, "member")
	members.add(models.RootTeamID, 6, "admin")
	members.add(models.RootTeamID, 7, "owner")
	a := newTestAuthorizer(t, members)
	ctx := context.Background()

	tests := []struct {
		name        string
		userID      int64
		teamID      int64
		invitedRole Role
		want        bool
	}{
		{"owner invites owner", 1, 5, RoleOwner, true},
		{"owner invites admin", 1, 5, RoleAdmin, true},
		{"owner invites member", 1, 5, RoleMember, true},
		{"admin invites member", 2, 5, RoleMember, true},
		{"admin cannot invite admin", 2, 5, RoleAdmin, false},
		{"admin cannot invite owner", 2, 5, RoleOwner, false},
		{"member cannot invite", 3, 5, RoleMember, false},
		{"root team admin cannot invite member", 6, models.RootTeamID, RoleMember, false},
		{"root team owner invites", 7, models.RootTeamID, RoleOwner, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Principal{UserID: tt.userID, Email: "u@example.com"}
			err := a.CanInvite(ctx, p, tt.teamID, tt.invitedRole)
			if tt.want && err != nil {
				t.Errorf("CanInvite() = %v, want allow", err)
			}
			if !tt.want && !errors.Is(err, ErrForbidden) {
				t.Errorf("CanInvite() = %v, want ErrForbidden", err)
			}
		})
	}
}

func TestCanPropagatesLookupErrors(t *testing.T) {
	lookupErr := errors.New("connection reset")
	a := newTestAuthorizer(t, &fakeMemberships{err: lookupErr})

	err := a.Can(context.Background(), Principal{UserID: 1}, ActionCreateRelease, 5)
	if !errors.Is(err, lookupErr) {
		t.Errorf("Can() = %v, want wrapped lookup error", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Error("infrastructure failure must not masquerade as denial")
	}
}
