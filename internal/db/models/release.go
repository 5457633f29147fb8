// Package models - release.go defines the Release model covering both release
// variants: core releases (per platform) and system releases. A release's
// identity — target, platform, version — and its owning team are fixed at
// creation; the only mutable state is the prerelease flag (one-way to false),
// the yanked flag (one-way to true), and the notes.
package models

import (
	"encoding/json"
	"time"
)

// Release target kinds.
const (
	ReleaseKindCore   = "core"
	ReleaseKindSystem = "system"
)

// Release represents a versioned publication of artifacts for a core (on a
// specific platform) or for a system. PlatformID is set exactly when Kind is
// "core".
type Release struct {
	ID           int64           `json:"id"`
	Kind         string          `json:"kind"`
	CoreID       *int64          `json:"core_id,omitempty"`
	SystemID     *int64          `json:"system_id,omitempty"`
	PlatformID   *int64          `json:"platform_id,omitempty"`
	Version      string          `json:"version"`
	Notes        *string         `json:"notes,omitempty"`
	Prerelease   bool            `json:"prerelease"`
	Yanked       bool            `json:"yanked"`
	Links        json.RawMessage `json:"links"`
	Metadata     json.RawMessage `json:"metadata"`
	UploaderID   int64           `json:"uploader_id"`
	OwnerTeamID  int64           `json:"owner_team_id"`
	ReleasedAt   time.Time       `json:"released_at"`
	UploadedAt   time.Time       `json:"uploaded_at"`
	// Joined fields (not stored in the releases table)
	UploaderName *string    `json:"uploader_name,omitempty"`
	Artifacts    []*Artifact `json:"artifacts,omitempty"`
}
