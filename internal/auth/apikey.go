// Package auth provides authentication primitives for the registry,
// including API key generation/validation and session token
// creation/verification. Two authentication methods are supported: session
// tokens (issued on login, stateless verification) and API keys (long-lived
// tokens with bcrypt hashing, looked up by plaintext prefix). See
// internal/middleware/auth.go for the request-time authentication logic that
// uses these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix identifies registry API keys at a glance.
	KeyPrefix = "cvr"

	// APIKeyLength is the length of the random part of the API key in bytes
	APIKeyLength = 32

	// DisplayPrefixLength is the number of plaintext characters stored
	// alongside the hash. The prefix is indexed so verification only
	// bcrypt-compares the handful of keys sharing it.
	DisplayPrefixLength = 10

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// GenerateAPIKey creates a new random API key.
// Returns: full key (to show once), bcrypt hash (to store), display prefix
// (to store in plaintext for lookup).
func GenerateAPIKey() (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullKey := fmt.Sprintf("%s_%s", KeyPrefix, randomPart)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return fullKey, string(hashBytes), DisplayPrefix(fullKey), nil
}

// DisplayPrefix returns the plaintext lookup prefix for a key.
func DisplayPrefix(key string) string {
	if len(key) > DisplayPrefixLength {
		return key[:DisplayPrefixLength]
	}
	return key
}

// ValidateAPIKey checks if a provided key matches the stored hash
func ValidateAPIKey(providedKey, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey))
	return err == nil
}

// ExtractAPIKeyFromHeader extracts the API key from an Authorization header.
// Expected format: "Bearer cvr_abc123xyz..."
func ExtractAPIKeyFromHeader(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	key := strings.TrimPrefix(header, "Bearer ")
	key = strings.TrimSpace(key)

	if key == "" {
		return "", errors.New("API key is empty after Bearer prefix")
	}

	return key, nil
}
