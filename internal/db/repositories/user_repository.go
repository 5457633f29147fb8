// user_repository.go implements UserRepository, providing database queries
// for user lookup and creation. Users are created on first login with only an
// email; the username is claimed later and is unique once set.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/corevault-registry/corevault-registry/internal/db/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a new user record
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, user.Username, user.Email).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by id. Returns nil when not found.
func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, username, email, created_at, updated_at FROM users WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by email. Returns nil when not found.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, username, email, created_at, updated_at FROM users WHERE email = $1`, email)
}

// GetUserByUsername retrieves a user by username. Returns nil when not found.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, username, email, created_at, updated_at FROM users WHERE username = $1`, username)
}

func (r *UserRepository) getUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// SetUsername claims a username for a user. The unique constraint on
// usernames surfaces as an error if the name is taken.
func (r *UserRepository) SetUsername(ctx context.Context, userID int64, username string) error {
	query := `
		UPDATE users
		SET username = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, username, userID)
	if err != nil {
		return fmt.Errorf("failed to set username: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d not found", userID)
	}

	return nil
}
