// Package models - artifact.go defines the Artifact model: a content-addressed
// file record identified by its SHA-256/SHA-512 digest pair. Two artifacts
// with identical digest pairs are the same content, and the database keeps at
// most one row per pair. An artifact with no digests is only valid when it is
// known exclusively by an external download URL.
package models

import "time"

// Artifact represents a stored or externally hosted release file.
type Artifact struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	SHA256      *string   `json:"sha256,omitempty"`
	SHA512      *string   `json:"sha512,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	DownloadURL *string   `json:"download_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stored reports whether the artifact's bytes live in the object store (as
// opposed to being externally hosted). Stored artifacts always have both
// digests.
func (a *Artifact) Stored() bool {
	return a.SHA256 != nil && a.SHA512 != nil
}

// ObjectKey returns the content-addressed object store key for a stored
// artifact, or "" for an external one.
func (a *Artifact) ObjectKey() string {
	if a.SHA256 == nil {
		return ""
	}
	return "artifacts/sha256/" + *a.SHA256
}
