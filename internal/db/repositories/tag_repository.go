// tag_repository.go implements TagRepository, providing database queries for
// tags and the join tables attaching them to cores, platforms, systems, and
// games.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/corevault-registry/corevault-registry/internal/db/models"
)

// tagJoinTables maps a taggable entity kind to its join table and entity
// column. Kinds outside this map cannot carry tags.
var tagJoinTables = map[string]struct{ table, column string }{
	"core":     {"core_tags", "core_id"},
	"platform": {"platform_tags", "platform_id"},
	"system":   {"system_tags", "system_id"},
	"game":     {"game_tags", "game_id"},
}

// TagRepository handles database operations for tags
type TagRepository struct {
	db *sqlx.DB
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *sqlx.DB) *TagRepository {
	return &TagRepository{db: db}
}

// CreateTag inserts a new tag record
func (r *TagRepository) CreateTag(ctx context.Context, tag *models.Tag) error {
	query := `
		INSERT INTO tags (slug, description, color)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query, tag.Slug, tag.Description, tag.Color).
		Scan(&tag.ID, &tag.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

// GetTagBySlug retrieves a tag by slug. Returns nil when not found.
func (r *TagRepository) GetTagBySlug(ctx context.Context, slug string) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.GetContext(ctx, &tag,
		`SELECT id, slug, description, color, created_at FROM tags WHERE slug = $1`, slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &tag, nil
}

// ListTags returns all tags ordered by slug.
func (r *TagRepository) ListTags(ctx context.Context, limit, offset int) ([]*models.Tag, error) {
	var tags []*models.Tag
	err := r.db.SelectContext(ctx, &tags,
		`SELECT id, slug, description, color, created_at FROM tags ORDER BY slug LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// Attach links a tag to a taggable entity. Attaching an already attached tag
// is a no-op.
func (r *TagRepository) Attach(ctx context.Context, kind string, entityID, tagID int64) error {
	join, ok := tagJoinTables[kind]
	if !ok {
		return fmt.Errorf("cannot tag entity kind %q", kind)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		join.table, join.column)
	if _, err := r.db.ExecContext(ctx, query, entityID, tagID); err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

// Detach unlinks a tag from a taggable entity.
func (r *TagRepository) Detach(ctx context.Context, kind string, entityID, tagID int64) error {
	join, ok := tagJoinTables[kind]
	if !ok {
		return fmt.Errorf("cannot tag entity kind %q", kind)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND tag_id = $2`, join.table, join.column)
	if _, err := r.db.ExecContext(ctx, query, entityID, tagID); err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	return nil
}

// ListFor returns the tags attached to a taggable entity.
func (r *TagRepository) ListFor(ctx context.Context, kind string, entityID int64) ([]*models.Tag, error) {
	join, ok := tagJoinTables[kind]
	if !ok {
		return nil, fmt.Errorf("cannot tag entity kind %q", kind)
	}

	query := fmt.Sprintf(`
		SELECT t.id, t.slug, t.description, t.color, t.created_at
		FROM tags t
		JOIN %s j ON j.tag_id = t.id
		WHERE j.%s = $1
		ORDER BY t.slug
	`, join.table, join.column)

	var tags []*models.Tag
	if err := r.db.SelectContext(ctx, &tags, query, entityID); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}
