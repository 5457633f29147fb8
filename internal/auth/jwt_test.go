package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func setTestSecret(t *testing.T) {
	t.Helper()
	jwtSecretOnce.Do(func() {})
	jwtSecret = "test-secret-0123456789abcdef0123456789abcdef"
	jwtSecretErr = nil
}

func TestGenerateAndValidateJWT(t *testing.T) {
	setTestSecret(t)

	token, err := GenerateJWT(42, "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}
	if token == "" {
		t.Fatal("GenerateJWT() returned empty token")
	}

	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT() error: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("claims.UserID = %d, want 42", claims.UserID)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("claims.Email = %q, want %q", claims.Email, "user@example.com")
	}
	if claims.Issuer != "corevault-registry" {
		t.Errorf("claims.Issuer = %q, want %q", claims.Issuer, "corevault-registry")
	}
	if claims.Subject != "42" {
		t.Errorf("claims.Subject = %q, want %q", claims.Subject, "42")
	}

	p := claims.Principal()
	if p.UserID != 42 || p.Email != "user@example.com" {
		t.Errorf("Principal() = %+v", p)
	}
}

func TestValidateJWTRejectsExpired(t *testing.T) {
	setTestSecret(t)

	token, err := GenerateJWT(42, "user@example.com", -time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}

	if _, err := ValidateJWT(token); err == nil {
		t.Error("ValidateJWT() accepted an expired token")
	}
}

func TestValidateJWTRejectsTampered(t *testing.T) {
	setTestSecret(t)

	token, err := GenerateJWT(42, "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]

	if _, err := ValidateJWT(tampered); err == nil {
		t.Error("ValidateJWT() accepted a tampered signature")
	}
}

func TestValidateJWTRejectsWrongAlgorithm(t *testing.T) {
	setTestSecret(t)

	// Unsigned tokens must never verify, regardless of claims content.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 42})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing with none: %v", err)
	}

	if _, err := ValidateJWT(unsigned); err == nil {
		t.Error("ValidateJWT() accepted an unsigned token")
	}
}
