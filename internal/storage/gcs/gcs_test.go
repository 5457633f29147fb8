package gcs

import (
	"testing"

	appconfig "github.com/corevault-registry/corevault-registry/internal/config"
)

// Constructor validation only; anything past New() needs a live bucket.

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(&appconfig.GCSStorageConfig{}); err == nil {
		t.Error("New() = nil error without bucket")
	}
}

func TestNewRejectsUnknownAuthMethod(t *testing.T) {
	cfg := &appconfig.GCSStorageConfig{
		Bucket:     "artifacts",
		AuthMethod: "kerberos",
	}
	if _, err := New(cfg); err == nil {
		t.Error("New() = nil error for unknown auth_method")
	}
}

func TestNewServiceAccountRequiresCredentials(t *testing.T) {
	cfg := &appconfig.GCSStorageConfig{
		Bucket:     "artifacts",
		AuthMethod: "service_account",
	}
	if _, err := New(cfg); err == nil {
		t.Error("New() = nil error for service_account auth without credentials")
	}
}

func TestNewImplicitServiceAccountWithBadJSON(t *testing.T) {
	// Credentials present without auth_method selects service_account auth;
	// malformed JSON must surface as a constructor error.
	cfg := &appconfig.GCSStorageConfig{
		Bucket:          "artifacts",
		CredentialsJSON: "{not json",
	}
	if _, err := New(cfg); err == nil {
		t.Error("New() = nil error for malformed credentials JSON")
	}
}
