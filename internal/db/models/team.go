// Package models - team.go defines the Team model, the ownership and
// permission-scoping unit for every catalog resource, and the TeamMember
// membership relation with its role and pending-invite marker.
package models

import (
	"encoding/json"
	"time"
)

// RootTeamID is the id of the distinguished root team seeded by the initial
// migration. Owners of this team hold platform-wide administrative rights.
const RootTeamID int64 = 1

// Team represents a team of users that owns catalog resources and releases.
type Team struct {
	ID          int64           `json:"id" db:"id"`
	Slug        string          `json:"slug" db:"slug"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Links       json.RawMessage `json:"links" db:"links"`
	Metadata    json.RawMessage `json:"metadata" db:"metadata"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// IsRoot reports whether this is the distinguished root team.
func (t *Team) IsRoot() bool {
	return t.ID == RootTeamID
}

// TeamMember represents a user's membership in a team. A row with a non-nil
// InvitedBy is a pending invitation: the user has been invited but has not
// accepted yet, and the row grants no permissions until InvitedBy is cleared.
type TeamMember struct {
	TeamID    int64     `json:"team_id" db:"team_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Role      string    `json:"role" db:"role"`
	InvitedBy *int64    `json:"invited_by,omitempty" db:"invited_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Pending reports whether the membership is an unaccepted invitation.
func (m *TeamMember) Pending() bool {
	return m.InvitedBy != nil
}

// TeamMemberWithUser includes user details for membership listings.
type TeamMemberWithUser struct {
	TeamID    int64     `json:"team_id" db:"team_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Role      string    `json:"role" db:"role"`
	Username  *string   `json:"username,omitempty" db:"username"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
