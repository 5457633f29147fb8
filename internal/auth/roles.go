// Package auth - roles.go defines the team role ladder and its ordering.
// Roles are totally ordered (member < admin < owner) and every permission
// check reduces to "does the caller hold at least role R on team T".
package auth

import (
	"errors"
	"fmt"
)

// Role represents a member's standing within a team.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// roleRank maps each role to its position in the ladder. Higher wins.
var roleRank = map[Role]int{
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// AllRoles returns the role ladder from lowest to highest.
func AllRoles() []Role {
	return []Role{RoleMember, RoleAdmin, RoleOwner}
}

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if _, ok := roleRank[role]; !ok {
		return "", fmt.Errorf("invalid role: %q", s)
	}
	return role, nil
}

// Valid reports whether the role is one of the three ladder values.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

func (r Role) String() string { return string(r) }

// Level returns the role's rank in the ladder, 0 for unknown roles.
func (r Role) Level() int {
	return roleRank[r]
}

// AtLeast reports whether r grants everything other grants.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// Above reports whether r strictly outranks other.
func (r Role) Above(other Role) bool {
	return roleRank[r] > roleRank[other]
}

// ErrUnknownRole is returned when a stored role string no longer parses.
// It indicates database corruption rather than a caller mistake.
var ErrUnknownRole = errors.New("unknown role value")
