// api_key_repository.go implements APIKeyRepository, providing database
// queries for API key lookup by prefix, creation, revocation, and last-used
// timestamp updates.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/corevault-registry/corevault-registry/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// CreateAPIKey inserts a new API key record. Only the bcrypt hash is stored.
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error {
	query := `
		INSERT INTO api_keys (user_id, name, key_prefix, key_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		apiKey.UserID,
		apiKey.Name,
		apiKey.KeyPrefix,
		apiKey.KeyHash,
		apiKey.ExpiresAt,
	).Scan(&apiKey.ID, &apiKey.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// GetAPIKeysByPrefix retrieves candidate keys sharing a plaintext prefix.
// The caller runs the bcrypt comparison against each candidate; the prefix
// index keeps that candidate set small.
func (r *APIKeyRepository) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	query := `
		SELECT id, user_id, name, key_prefix, key_hash, expires_at, last_used_at, created_at
		FROM api_keys
		WHERE key_prefix = $1
	`

	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k := &models.APIKey{}
		err := rows.Scan(
			&k.ID,
			&k.UserID,
			&k.Name,
			&k.KeyPrefix,
			&k.KeyHash,
			&k.ExpiresAt,
			&k.LastUsedAt,
			&k.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, k)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}

	return keys, nil
}

// ListAPIKeysForUser returns all keys owned by a user.
func (r *APIKeyRepository) ListAPIKeysForUser(ctx context.Context, userID int64) ([]*models.APIKey, error) {
	query := `
		SELECT id, user_id, name, key_prefix, key_hash, expires_at, last_used_at, created_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k := &models.APIKey{}
		err := rows.Scan(
			&k.ID,
			&k.UserID,
			&k.Name,
			&k.KeyPrefix,
			&k.KeyHash,
			&k.ExpiresAt,
			&k.LastUsedAt,
			&k.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, k)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}

	return keys, nil
}

// UpdateLastUsed stamps an API key's last_used_at. Best effort: callers may
// ignore the error, a missed stamp only skews the usage display.
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, keyID int64) error {
	query := `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, keyID); err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}
	return nil
}

// DeleteAPIKey revokes a key. The user id guard prevents deleting another
// user's key through a guessed id.
func (r *APIKeyRepository) DeleteAPIKey(ctx context.Context, keyID, userID int64) error {
	query := `DELETE FROM api_keys WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, keyID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
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
