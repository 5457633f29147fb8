// Package models - user.go defines the User model. Usernames are optional
// until the user completes signup; email is always present and unique.
package models

import "time"

// User represents a registered user.
type User struct {
	ID        int64     `json:"id"`
	Username  *string   `json:"username,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// APIKey represents a stored API key for the automation/CLI surface. Only the
// bcrypt hash of the key is persisted; KeyPrefix holds the first characters
// of the raw key in plaintext for indexed candidate lookup.
type APIKey struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	KeyHash    string     `json:"-"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
