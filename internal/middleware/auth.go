// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, request IDs, security headers, and metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → SecurityHeaders → RateLimit → Auth → Handler
//
// RequestID runs early so every later stage logs with the same id. Rate
// limiting is attached per route group and runs before auth to block
// brute-force attempts before any DB work. Auth resolves the principal;
// handlers consult the authorizer with it.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/db/repositories"
)

// PrincipalKey is the gin context key under which the authenticated
// auth.Principal is stored.
const PrincipalKey = "principal"

// GetPrincipal returns the authenticated principal from the gin context.
func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// AuthMiddleware validates authentication (JWT session token or API key) and
// stores the resolved principal in the request context.
func AuthMiddleware(userRepo *repositories.UserRepository, apiKeyRepo *repositories.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed authorization header",
			})
			return
		}

		// JWT validation is attempted first because it is entirely stateless —
		// a cryptographic check against the secret with no database round-trip.
		// API key validation always hits the DB (prefix lookup + bcrypt), so
		// JWT is the lower-latency path for browser sessions.
		if claims, err := auth.ValidateJWT(token); err == nil {
			user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to load user",
				})
				return
			}
			if user == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "User not found",
				})
				return
			}

			c.Set(PrincipalKey, auth.Principal{UserID: user.ID, Email: user.Email})
			c.Set("user", user)
			c.Set("auth_method", "jwt")
			c.Next()
			return
		}

		// The raw key is never stored — only its bcrypt hash. The plaintext
		// prefix narrows the candidate set with an indexed query so bcrypt
		// runs on a handful of rows, not the whole table.
		apiKey, err := authenticateAPIKey(c.Request.Context(), token, apiKeyRepo)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authentication failed",
			})
			return
		}

		if apiKey != nil {
			if apiKey.ExpiresAt != nil && time.Now().After(*apiKey.ExpiresAt) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "API key expired",
				})
				return
			}

			user, err := userRepo.GetUserByID(c.Request.Context(), apiKey.UserID)
			if err != nil || user == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "API key owner not found",
				})
				return
			}

			// Fire-and-forget: last-used tracking is best-effort, and a
			// synchronous write here would tax every authenticated request.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = apiKeyRepo.UpdateLastUsed(ctx, apiKey.ID)
			}()

			c.Set(PrincipalKey, auth.Principal{UserID: user.ID, Email: user.Email})
			c.Set("user", user)
			c.Set("api_key", apiKey)
			c.Set("auth_method", "api_key")
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid credentials",
		})
	}
}

// OptionalAuthMiddleware resolves the principal when credentials are present
// but never aborts. Public read endpoints use it so authenticated callers can
// see prerelease or yanked rows where handlers allow it.
func OptionalAuthMiddleware(userRepo *repositories.UserRepository, apiKeyRepo *repositories.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		if claims, err := auth.ValidateJWT(token); err == nil {
			user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
			if err == nil && user != nil {
				c.Set(PrincipalKey, auth.Principal{UserID: user.ID, Email: user.Email})
				c.Set("user", user)
				c.Set("auth_method", "jwt")
			}
			c.Next()
			return
		}

		apiKey, _ := authenticateAPIKey(c.Request.Context(), token, apiKeyRepo)
		if apiKey != nil && (apiKey.ExpiresAt == nil || time.Now().Before(*apiKey.ExpiresAt)) {
			user, err := userRepo.GetUserByID(c.Request.Context(), apiKey.UserID)
			if err == nil && user != nil {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = apiKeyRepo.UpdateLastUsed(ctx, apiKey.ID)
				}()

				c.Set(PrincipalKey, auth.Principal{UserID: user.ID, Email: user.Email})
				c.Set("user", user)
				c.Set("api_key", apiKey)
				c.Set("auth_method", "api_key")
			}
		}

		c.Next()
	}
}

// bearerToken extracts the token from a "Bearer <token>" authorization
// header. Returns false for missing, malformed, or empty values.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// authenticateAPIKey runs the prefix lookup and bcrypt comparison for an API
// key. Returns nil without error when no candidate matches.
func authenticateAPIKey(ctx context.Context, providedKey string, apiKeyRepo *repositories.APIKeyRepository) (*models.APIKey, error) {
	keys, err := apiKeyRepo.GetAPIKeysByPrefix(ctx, auth.DisplayPrefix(providedKey))
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		if auth.ValidateAPIKey(providedKey, key.KeyHash) {
			return key, nil
		}
	}

	return nil, nil
}
