// Package models - catalog.go defines the catalog entities: Platform (a
// hardware target that runs cores), System (an emulated machine such as the
// NES), Core (an emulator implementation of a system for a platform), and
// Game. Each has a globally unique slug and name within its entity type and
// exactly one owning team.
package models

import (
	"encoding/json"
	"time"
)

// Platform represents a hardware target that runs emulation cores.
type Platform struct {
	ID          int64           `json:"id" db:"id"`
	Slug        string          `json:"slug" db:"slug"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Links       json.RawMessage `json:"links" db:"links"`
	Metadata    json.RawMessage `json:"metadata" db:"metadata"`
	OwnerTeamID int64           `json:"owner_team_id" db:"owner_team_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	// Joined fields (not stored in the platforms table)
	OwnerTeamSlug *string `json:"owner_team_slug,omitempty" db:"owner_team_slug"`
}

// System represents an emulated machine, e.g. "NES" or "Game Boy".
type System struct {
	ID           int64           `json:"id" db:"id"`
	Slug         string          `json:"slug" db:"slug"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description" db:"description"`
	Manufacturer string          `json:"manufacturer" db:"manufacturer"`
	Links        json.RawMessage `json:"links" db:"links"`
	Metadata     json.RawMessage `json:"metadata" db:"metadata"`
	OwnerTeamID  int64           `json:"owner_team_id" db:"owner_team_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
	// Joined fields (not stored in the systems table)
	OwnerTeamSlug *string `json:"owner_team_slug,omitempty" db:"owner_team_slug"`
}

// Core represents an emulator implementation of a System.
type Core struct {
	ID          int64           `json:"id" db:"id"`
	Slug        string          `json:"slug" db:"slug"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	SystemID    int64           `json:"system_id" db:"system_id"`
	Links       json.RawMessage `json:"links" db:"links"`
	Metadata    json.RawMessage `json:"metadata" db:"metadata"`
	OwnerTeamID int64           `json:"owner_team_id" db:"owner_team_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	// Joined fields (not stored in the cores table)
	SystemSlug    *string `json:"system_slug,omitempty" db:"system_slug"`
	OwnerTeamSlug *string `json:"owner_team_slug,omitempty" db:"owner_team_slug"`
}

// Game represents a catalogued game title for a System.
type Game struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	ShortName   string          `json:"short_name" db:"short_name"`
	Year        *int            `json:"year,omitempty" db:"year"`
	Publisher   *string         `json:"publisher,omitempty" db:"publisher"`
	SystemID    int64           `json:"system_id" db:"system_id"`
	Links       json.RawMessage `json:"links" db:"links"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	// Joined fields (not stored in the games table)
	SystemSlug *string `json:"system_slug,omitempty" db:"system_slug"`
}

// Tag is a label attachable to cores, platforms, systems, and games.
type Tag struct {
	ID          int64     `json:"id" db:"id"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description" db:"description"`
	Color       int       `json:"color" db:"color"` // 24-bit RGB
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
