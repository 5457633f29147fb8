// catalog_repository.go implements CatalogRepository, providing database
// queries for platforms, systems, cores, and games. The release ledger only
// consumes the ownership lookups; everything else serves the catalog CRUD
// surface.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/corevault-registry/corevault-registry/internal/db/models"
)

// CatalogRepository handles database operations for catalog entities
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Platform operations

// CreatePlatform inserts a new platform record
func (r *CatalogRepository) CreatePlatform(ctx context.Context, p *models.Platform) error {
	query := `
		INSERT INTO platforms (slug, name, description, links, metadata, owner_team_id)
		VALUES ($1, $2, $3, COALESCE($4, '{}'::jsonb), COALESCE($5, '{}'::jsonb), $6)
		RETURNING id, links, metadata, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		p.Slug, p.Name, p.Description, nullableJSON(p.Links), nullableJSON(p.Metadata), p.OwnerTeamID,
	).Scan(&p.ID, &p.Links, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create platform: %w", err)
	}
	return nil
}

// GetPlatformByID retrieves a platform by id. Returns nil when not found.
func (r *CatalogRepository) GetPlatformByID(ctx context.Context, id int64) (*models.Platform, error) {
	return r.getPlatform(ctx, "p.id = $1", id)
}

// GetPlatformBySlug retrieves a platform by slug. Returns nil when not found.
func (r *CatalogRepository) GetPlatformBySlug(ctx context.Context, slug string) (*models.Platform, error) {
	return r.getPlatform(ctx, "p.slug = $1", slug)
}

func (r *CatalogRepository) getPlatform(ctx context.Context, where string, arg interface{}) (*models.Platform, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.slug, p.name, p.description, p.links, p.metadata,
		       p.owner_team_id, p.created_at, p.updated_at, t.slug AS owner_team_slug
		FROM platforms p
		JOIN teams t ON t.id = p.owner_team_id
		WHERE %s
	`, where)

	var p models.Platform
	err := r.db.GetContext(ctx, &p, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get platform: %w", err)
	}
	return &p, nil
}

// ListPlatforms returns platforms ordered by slug.
func (r *CatalogRepository) ListPlatforms(ctx context.Context, limit, offset int) ([]*models.Platform, error) {
	var platforms []*models.Platform
	err := r.db.SelectContext(ctx, &platforms, `
		SELECT p.id, p.slug, p.name, p.description, p.links, p.metadata,
		       p.owner_team_id, p.created_at, p.updated_at, t.slug AS owner_team_slug
		FROM platforms p
		JOIN teams t ON t.id = p.owner_team_id
		ORDER BY p.slug LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}
	return platforms, nil
}

// UpdatePlatform updates a platform's metadata fields.
func (r *CatalogRepository) UpdatePlatform(ctx context.Context, p *models.Platform) error {
	query := `
		UPDATE platforms
		SET name = $1, description = $2,
		    links = COALESCE($3, links), metadata = COALESCE($4, metadata),
		    updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		p.Name, p.Description, nullableJSON(p.Links), nullableJSON(p.Metadata), p.ID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update platform: %w", err)
	}
	return nil
}

// System operations

// CreateSystem inserts a new system record
func (r *CatalogRepository) CreateSystem(ctx context.Context, s *models.System) error {
	query := `
		INSERT INTO systems (slug, name, description, manufacturer, links, metadata, owner_team_id)
		VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb), COALESCE($6, '{}'::jsonb), $7)
		RETURNING id, links, metadata, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		s.Slug, s.Name, s.Description, s.Manufacturer,
		nullableJSON(s.Links), nullableJSON(s.Metadata), s.OwnerTeamID,
	).Scan(&s.ID, &s.Links, &s.Metadata, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create system: %w", err)
	}
	return nil
}

// GetSystemByID retrieves a system by id. Returns nil when not found.
func (r *CatalogRepository) GetSystemByID(ctx context.Context, id int64) (*models.System, error) {
	return r.getSystem(ctx, "s.id = $1", id)
}

// GetSystemBySlug retrieves a system by slug. Returns nil when not found.
func (r *CatalogRepository) GetSystemBySlug(ctx context.Context, slug string) (*models.System, error) {
	return r.getSystem(ctx, "s.slug = $1", slug)
}

func (r *CatalogRepository) getSystem(ctx context.Context, where string, arg interface{}) (*models.System, error) {
	query := fmt.Sprintf(`
		SELECT s.id, s.slug, s.name, s.description, s.manufacturer, s.links, s.metadata,
		       s.owner_team_id, s.created_at, s.updated_at, t.slug AS owner_team_slug
		FROM systems s
		JOIN teams t ON t.id = s.owner_team_id
		WHERE %s
	`, where)

	var s models.System
	err := r.db.GetContext(ctx, &s, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get system: %w", err)
	}
	return &s, nil
}

// ListSystems returns systems ordered by slug.
func (r *CatalogRepository) ListSystems(ctx context.Context, limit, offset int) ([]*models.System, error) {
	var systems []*models.System
	err := r.db.SelectContext(ctx, &systems, `
		SELECT s.id, s.slug, s.name, s.description, s.manufacturer, s.links, s.metadata,
		       s.owner_team_id, s.created_at, s.updated_at, t.slug AS owner_team_slug
		FROM systems s
		JOIN teams t ON t.id = s.owner_team_id
		ORDER BY s.slug LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list systems: %w", err)
	}
	return systems, nil
}

// UpdateSystem updates a system's metadata fields.
func (r *CatalogRepository) UpdateSystem(ctx context.Context, s *models.System) error {
	query := `
		UPDATE systems
		SET name = $1, description = $2, manufacturer = $3,
		    links = COALESCE($4, links), metadata = COALESCE($5, metadata),
		    updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		s.Name, s.Description, s.Manufacturer,
		nullableJSON(s.Links), nullableJSON(s.Metadata), s.ID,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update system: %w", err)
	}
	return nil
}

// Core operations

// CreateCore inserts a new core record
func (r *CatalogRepository) CreateCore(ctx context.Context, c *models.Core) error {
	query := `
		INSERT INTO cores (slug, name, description, system_id, links, metadata, owner_team_id)
		VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb), COALESCE($6, '{}'::jsonb), $7)
		RETURNING id, links, metadata, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		c.Slug, c.Name, c.Description, c.SystemID,
		nullableJSON(c.Links), nullableJSON(c.Metadata), c.OwnerTeamID,
	).Scan(&c.ID, &c.Links, &c.Metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create core: %w", err)
	}
	return nil
}

// GetCoreByID retrieves a core by id. Returns nil when not found.
func (r *CatalogRepository) GetCoreByID(ctx context.Context, id int64) (*models.Core, error) {
	return r.getCore(ctx, "c.id = $1", id)
}

// GetCoreBySlug retrieves a core by slug. Returns nil when not found.
func (r *CatalogRepository) GetCoreBySlug(ctx context.Context, slug string) (*models.Core, error) {
	return r.getCore(ctx, "c.slug = $1", slug)
}

func (r *CatalogRepository) getCore(ctx context.Context, where string, arg interface{}) (*models.Core, error) {
	query := fmt.Sprintf(`
		SELECT c.id, c.slug, c.name, c.description, c.system_id, c.links, c.metadata,
		       c.owner_team_id, c.created_at, c.updated_at,
		       s.slug AS system_slug, t.slug AS owner_team_slug
		FROM cores c
		JOIN systems s ON s.id = c.system_id
		JOIN teams t ON t.id = c.owner_team_id
		WHERE %s
	`, where)

	var c models.Core
	err := r.db.GetContext(ctx, &c, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get core: %w", err)
	}
	return &c, nil
}

// ListCores returns cores ordered by slug, optionally filtered by system.
func (r *CatalogRepository) ListCores(ctx context.Context, systemID *int64, limit, offset int) ([]*models.Core, error) {
	query := `
		SELECT c.id, c.slug, c.name, c.description, c.system_id, c.links, c.metadata,
		       c.owner_team_id, c.created_at, c.updated_at,
		       s.slug AS system_slug, t.slug AS owner_team_slug
		FROM cores c
		JOIN systems s ON s.id = c.system_id
		JOIN teams t ON t.id = c.owner_team_id
	`
	args := []interface{}{limit, offset}
	if systemID != nil {
		query += " WHERE c.system_id = $3"
		args = append(args, *systemID)
	}
	query += " ORDER BY c.slug LIMIT $1 OFFSET $2"

	var cores []*models.Core
	if err := r.db.SelectContext(ctx, &cores, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list cores: %w", err)
	}
	return cores, nil
}

// UpdateCore updates a core's metadata fields.
func (r *CatalogRepository) UpdateCore(ctx context.Context, c *models.Core) error {
	query := `
		UPDATE cores
		SET name = $1, description = $2,
		    links = COALESCE($3, links), metadata = COALESCE($4, metadata),
		    updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		c.Name, c.Description, nullableJSON(c.Links), nullableJSON(c.Metadata), c.ID,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update core: %w", err)
	}
	return nil
}

// TransferOwnership re-assigns a catalog entity (platform, system, or core)
// to another team. Existing releases keep the team that published them.
func (r *CatalogRepository) TransferOwnership(ctx context.Context, table string, id, newTeamID int64) error {
	switch table {
	case "platforms", "systems", "cores":
	default:
		return fmt.Errorf("cannot transfer ownership of %s", table)
	}

	query := fmt.Sprintf(`UPDATE %s SET owner_team_id = $1, updated_at = NOW() WHERE id = $2`, table)
	result, err := r.db.ExecContext(ctx, query, newTeamID, id)
	if err != nil {
		return fmt.Errorf("failed to transfer ownership: %w", err)
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

// Game operations

// CreateGame inserts a new game record
func (r *CatalogRepository) CreateGame(ctx context.Context, g *models.Game) error {
	query := `
		INSERT INTO games (name, description, short_name, year, publisher, system_id, links)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, '{}'::jsonb))
		RETURNING id, links, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		g.Name, g.Description, g.ShortName, g.Year, g.Publisher, g.SystemID, nullableJSON(g.Links),
	).Scan(&g.ID, &g.Links, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// GetGameByID retrieves a game by id. Returns nil when not found.
func (r *CatalogRepository) GetGameByID(ctx context.Context, id int64) (*models.Game, error) {
	var g models.Game
	err := r.db.GetContext(ctx, &g, `
		SELECT g.id, g.name, g.description, g.short_name, g.year, g.publisher,
		       g.system_id, g.links, g.created_at, g.updated_at, s.slug AS system_slug
		FROM games g
		JOIN systems s ON s.id = g.system_id
		WHERE g.id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return &g, nil
}

// UpdateGame updates a game's mutable fields.
func (r *CatalogRepository) UpdateGame(ctx context.Context, g *models.Game) error {
	query := `
		UPDATE games
		SET name = $1, description = $2, short_name = $3, year = $4, publisher = $5,
		    links = COALESCE($6, links), updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		g.Name, g.Description, g.ShortName, g.Year, g.Publisher, nullableJSON(g.Links), g.ID,
	).Scan(&g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}
	return nil
}

// ListGames returns games ordered by name, optionally filtered by system.
func (r *CatalogRepository) ListGames(ctx context.Context, systemID *int64, limit, offset int) ([]*models.Game, error) {
	query := `
		SELECT g.id, g.name, g.description, g.short_name, g.year, g.publisher,
		       g.system_id, g.links, g.created_at, g.updated_at, s.slug AS system_slug
		FROM games g
		JOIN systems s ON s.id = g.system_id
	`
	args := []interface{}{limit, offset}
	if systemID != nil {
		query += " WHERE g.system_id = $3"
		args = append(args, *systemID)
	}
	query += " ORDER BY g.name LIMIT $1 OFFSET $2"

	var games []*models.Game
	if err := r.db.SelectContext(ctx, &games, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}
