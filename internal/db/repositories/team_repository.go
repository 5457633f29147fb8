// team_repository.go implements TeamRepository, providing database queries
// for teams and team memberships, including the invitation flow: an invite is
// a membership row with invited_by set, which grants no permissions until the
// invited user accepts and the marker is cleared.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/corevault-registry/corevault-registry/internal/db/models"
)

// TeamRepository handles database operations for teams and memberships
type TeamRepository struct {
	db *sqlx.DB
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *sqlx.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// CreateTeamWithOwner inserts a team and seats its first owner in one
// transaction, so a failed membership insert never leaves an ownerless team
// behind.
func (r *TeamRepository) CreateTeamWithOwner(ctx context.Context, team *models.Team, ownerID int64, role string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO teams (slug, name, description, links, metadata)
		VALUES ($1, $2, $3, COALESCE($4, '{}'::jsonb), COALESCE($5, '{}'::jsonb))
		RETURNING id, links, metadata, created_at, updated_at
	`,
		team.Slug,
		team.Name,
		team.Description,
		nullableJSON(team.Links),
		nullableJSON(team.Metadata),
	).Scan(&team.ID, &team.Links, &team.Metadata, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3)`,
		team.ID, ownerID, role)
	if err != nil {
		return fmt.Errorf("failed to seat owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit team creation: %w", err)
	}
	return nil
}

// GetTeamByID retrieves a team by id. Returns nil when not found.
func (r *TeamRepository) GetTeamByID(ctx context.Context, id int64) (*models.Team, error) {
	var team models.Team
	err := r.db.GetContext(ctx, &team,
		`SELECT id, slug, name, description, links, metadata, created_at, updated_at FROM teams WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

// GetTeamBySlug retrieves a team by slug. Returns nil when not found.
func (r *TeamRepository) GetTeamBySlug(ctx context.Context, slug string) (*models.Team, error) {
	var team models.Team
	err := r.db.GetContext(ctx, &team,
		`SELECT id, slug, name, description, links, metadata, created_at, updated_at FROM teams WHERE slug = $1`, slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

// ListTeams returns teams ordered by slug with offset pagination.
func (r *TeamRepository) ListTeams(ctx context.Context, limit, offset int) ([]*models.Team, error) {
	var teams []*models.Team
	err := r.db.SelectContext(ctx, &teams,
		`SELECT id, slug, name, description, links, metadata, created_at, updated_at
		 FROM teams ORDER BY slug LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

// UpdateTeam updates a team's mutable fields.
func (r *TeamRepository) UpdateTeam(ctx context.Context, team *models.Team) error {
	query := `
		UPDATE teams
		SET slug = $1, name = $2, description = $3,
		    links = COALESCE($4, links), metadata = COALESCE($5, metadata),
		    updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		team.Slug,
		team.Name,
		team.Description,
		nullableJSON(team.Links),
		nullableJSON(team.Metadata),
		team.ID,
	).Scan(&team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}

	return nil
}

// DeleteTeam removes a team. Fails on teams that still own catalog resources
// or releases via foreign key constraints.
func (r *TeamRepository) DeleteTeam(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// GetMembership retrieves the membership row for (team, user), pending or
// accepted. Returns nil when the user has no relationship with the team.
func (r *TeamRepository) GetMembership(ctx context.Context, teamID, userID int64) (*models.TeamMember, error) {
	var member models.TeamMember
	err := r.db.GetContext(ctx, &member,
		`SELECT team_id, user_id, role, invited_by, created_at
		 FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &member, nil
}

// ListMembers returns accepted members of a team with user details. Pending
// invitations are excluded.
func (r *TeamRepository) ListMembers(ctx context.Context, teamID int64) ([]*models.TeamMemberWithUser, error) {
	var members []*models.TeamMemberWithUser
	err := r.db.SelectContext(ctx, &members,
		`SELECT tm.team_id, tm.user_id, tm.role, u.username, u.email, tm.created_at
		 FROM team_members tm
		 JOIN users u ON u.id = tm.user_id
		 WHERE tm.team_id = $1 AND tm.invited_by IS NULL
		 ORDER BY tm.created_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// ListMembershipsForUser returns all accepted memberships for a user.
func (r *TeamRepository) ListMembershipsForUser(ctx context.Context, userID int64) ([]*models.TeamMember, error) {
	var memberships []*models.TeamMember
	err := r.db.SelectContext(ctx, &memberships,
		`SELECT team_id, user_id, role, invited_by, created_at
		 FROM team_members WHERE user_id = $1 AND invited_by IS NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return memberships, nil
}

// CreateInvite records a pending invitation. The primary key on
// (team_id, user_id) rejects duplicate invitations and invitations for
// existing members.
func (r *TeamRepository) CreateInvite(ctx context.Context, teamID, userID, invitedBy int64, role string) error {
	query := `
		INSERT INTO team_members (team_id, user_id, role, invited_by)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.ExecContext(ctx, query, teamID, userID, role, invitedBy); err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// AcceptInvite clears the pending marker, turning the invitation into a full
// membership. Returns sql.ErrNoRows when there is no pending invite.
func (r *TeamRepository) AcceptInvite(ctx context.Context, teamID, userID int64) error {
	query := `
		UPDATE team_members
		SET invited_by = NULL
		WHERE team_id = $1 AND user_id = $2 AND invited_by IS NOT NULL
	`

	result, err := r.db.ExecContext(ctx, query, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to accept invite: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// RemoveMember deletes a membership or pending invitation.
func (r *TeamRepository) RemoveMember(ctx context.Context, teamID, userID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// nullableJSON converts an empty RawMessage to nil so COALESCE picks the
// column default instead of storing SQL null or the empty string.
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
