// Package api wires the HTTP surface: middleware chain, route groups, and
// the health/readiness/version endpoints. Catalog and release reads are
// public (optional authentication only enriches the context); every write
// sits behind the auth middleware, and uploads behind a stricter rate limit.
package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/corevault-registry/corevault-registry/internal/api/catalog"
	"github.com/corevault-registry/corevault-registry/internal/api/teams"
	"github.com/corevault-registry/corevault-registry/internal/api/users"
	"github.com/corevault-registry/corevault-registry/internal/artifacts"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/config"
	"github.com/corevault-registry/corevault-registry/internal/db/repositories"
	"github.com/corevault-registry/corevault-registry/internal/middleware"
	"github.com/corevault-registry/corevault-registry/internal/releases"
	"github.com/corevault-registry/corevault-registry/internal/storage"

	releaseapi "github.com/corevault-registry/corevault-registry/internal/api/releases"
)

// Version is the reported service version. Overridden at build time with
// -ldflags "-X .../internal/api.Version=...".
var Version = "0.1.0"

// BackgroundServices holds the long-lived components the router starts, so
// the server can stop them on shutdown.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background services gracefully.
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("Background services stopped")
}

// NewRouter builds the gin engine with all routes and middleware configured.
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	// sqlx wraps the shared *sql.DB; both handles use one connection pool.
	sqlxDB := sqlx.NewDb(db, "postgres")

	userRepo := repositories.NewUserRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	artifactRepo := repositories.NewArtifactRepository(db)
	releaseRepo := repositories.NewReleaseRepository(db)
	catalogRepo := repositories.NewCatalogRepository(sqlxDB)
	tagRepo := repositories.NewTagRepository(sqlxDB)
	teamRepo := repositories.NewTeamRepository(sqlxDB)

	authz, err := auth.NewAuthorizer(teamRepo, auth.Options{
		RootTeamID: cfg.Auth.RootTeamID,
		RootEmails: cfg.Auth.RootEmails,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize authorizer: %w", err)
	}

	artifactStore := artifacts.NewStore(artifactRepo, storageBackend, cfg.Artifacts.MaxSizeBytes)
	releaseLedger := releases.NewLedger(releaseRepo, artifactStore, authz)

	catalogHandlers := catalog.NewHandlers(catalogRepo, tagRepo, authz, cfg.Auth.RootTeamID)
	releaseHandlers := releaseapi.NewHandlers(releaseLedger, artifactStore, catalogRepo, artifactRepo, cfg.Artifacts.DownloadURLTTL)
	teamHandlers := teams.NewHandlers(teamRepo, userRepo, authz)
	userHandlers := users.NewHandlers(userRepo, apiKeyRepo, cfg)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, storageBackend))
	router.GET("/version", versionHandler())

	authRateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	uploadRateLimiter := middleware.NewRateLimiter(middleware.UploadRateLimitConfig())

	optionalAuth := middleware.OptionalAuthMiddleware(userRepo, apiKeyRepo)
	requireAuth := middleware.AuthMiddleware(userRepo, apiKeyRepo)
	generalLimit := middleware.RateLimitMiddleware(generalRateLimiter)
	uploadLimit := middleware.RateLimitMiddleware(uploadRateLimiter)

	// Session issue: no credential yet, strictest rate limit.
	authGroup := router.Group("/v1/auth")
	authGroup.Use(middleware.RateLimitMiddleware(authRateLimiter))
	{
		authGroup.POST("/session", userHandlers.CreateSession)
	}

	// Public reads. Optional auth populates the principal when a token is
	// present but never rejects.
	public := router.Group("/v1")
	public.Use(optionalAuth)
	public.Use(generalLimit)
	{
		public.GET("/platforms", catalogHandlers.ListPlatforms)
		public.GET("/platforms/:slug", catalogHandlers.GetPlatform)
		public.GET("/platforms/:slug/tags", catalogHandlers.ListEntityTags("platform"))

		public.GET("/systems", catalogHandlers.ListSystems)
		public.GET("/systems/:slug", catalogHandlers.GetSystem)
		public.GET("/systems/:slug/tags", catalogHandlers.ListEntityTags("system"))
		public.GET("/systems/:slug/releases", releaseHandlers.ListSystemReleases)
		public.GET("/systems/:slug/releases/latest", releaseHandlers.LatestSystemRelease)
		public.GET("/systems/:slug/releases/:version", releaseHandlers.GetSystemRelease)
		public.GET("/systems/:slug/releases/:version/artifacts/:artifact_id/download", releaseHandlers.DownloadSystemArtifact)

		public.GET("/cores", catalogHandlers.ListCores)
		public.GET("/cores/:slug", catalogHandlers.GetCore)
		public.GET("/cores/:slug/tags", catalogHandlers.ListEntityTags("core"))
		public.GET("/cores/:slug/platforms/:platform/releases", releaseHandlers.ListCoreReleases)
		public.GET("/cores/:slug/platforms/:platform/releases/latest", releaseHandlers.LatestCoreRelease)
		public.GET("/cores/:slug/platforms/:platform/releases/:version", releaseHandlers.GetCoreRelease)
		public.GET("/cores/:slug/platforms/:platform/releases/:version/artifacts/:artifact_id/download", releaseHandlers.DownloadCoreArtifact)

		public.GET("/games", catalogHandlers.ListGames)
		public.GET("/games/:id", catalogHandlers.GetGame)
		public.GET("/games/:id/tags", catalogHandlers.ListEntityTags("game"))

		public.GET("/tags", catalogHandlers.ListTags)
		public.GET("/tags/:slug", catalogHandlers.GetTag)

		public.GET("/teams", teamHandlers.ListTeams)
		public.GET("/teams/:slug", teamHandlers.GetTeam)
		public.GET("/teams/:slug/members", teamHandlers.ListMembers)
	}

	// Authenticated writes.
	authed := router.Group("/v1")
	authed.Use(requireAuth)
	authed.Use(generalLimit)
	{
		authed.POST("/platforms", catalogHandlers.CreatePlatform)
		authed.PUT("/platforms/:slug", catalogHandlers.UpdatePlatform)
		authed.POST("/platforms/:slug/transfer", catalogHandlers.TransferPlatform)
		authed.POST("/platforms/:slug/tags", catalogHandlers.AttachTag("platform"))
		authed.DELETE("/platforms/:slug/tags/:tag", catalogHandlers.DetachTag("platform"))

		authed.POST("/systems", catalogHandlers.CreateSystem)
		authed.PUT("/systems/:slug", catalogHandlers.UpdateSystem)
		authed.POST("/systems/:slug/transfer", catalogHandlers.TransferSystem)
		authed.POST("/systems/:slug/tags", catalogHandlers.AttachTag("system"))
		authed.DELETE("/systems/:slug/tags/:tag", catalogHandlers.DetachTag("system"))

		authed.POST("/cores", catalogHandlers.CreateCore)
		authed.PUT("/cores/:slug", catalogHandlers.UpdateCore)
		authed.POST("/cores/:slug/transfer", catalogHandlers.TransferCore)
		authed.POST("/cores/:slug/tags", catalogHandlers.AttachTag("core"))
		authed.DELETE("/cores/:slug/tags/:tag", catalogHandlers.DetachTag("core"))

		authed.POST("/games", catalogHandlers.CreateGame)
		authed.PUT("/games/:id", catalogHandlers.UpdateGame)
		authed.POST("/games/:id/tags", catalogHandlers.AttachTag("game"))
		authed.DELETE("/games/:id/tags/:tag", catalogHandlers.DetachTag("game"))

		authed.POST("/tags", catalogHandlers.CreateTag)

		// Release publication carries file uploads; stricter rate limit.
		authed.POST("/systems/:slug/releases", uploadLimit, releaseHandlers.CreateSystemRelease)
		authed.POST("/systems/:slug/releases/:version/yank", releaseHandlers.YankSystemRelease)
		authed.PATCH("/systems/:slug/releases/:version", releaseHandlers.EditSystemRelease)
		authed.POST("/cores/:slug/platforms/:platform/releases", uploadLimit, releaseHandlers.CreateCoreRelease)
		authed.POST("/cores/:slug/platforms/:platform/releases/:version/yank", releaseHandlers.YankCoreRelease)
		authed.PATCH("/cores/:slug/platforms/:platform/releases/:version", releaseHandlers.EditCoreRelease)

		authed.POST("/teams", teamHandlers.CreateTeam)
		authed.PUT("/teams/:slug", teamHandlers.UpdateTeam)
		authed.DELETE("/teams/:slug", teamHandlers.DeleteTeam)
		authed.POST("/teams/:slug/invites", teamHandlers.InviteMember)
		authed.POST("/teams/:slug/invites/accept", teamHandlers.AcceptInvite)
		authed.DELETE("/teams/:slug/members/:user_id", teamHandlers.RemoveMember)

		authed.GET("/users/me", userHandlers.Me)
		authed.PUT("/users/me/username", userHandlers.ClaimUsername)
		authed.GET("/users/me/memberships", teamHandlers.ListMyMemberships)
		authed.POST("/users/me/apikeys", userHandlers.CreateAPIKey)
		authed.GET("/users/me/apikeys", userHandlers.ListAPIKeys)
		authed.DELETE("/users/me/apikeys/:id", userHandlers.DeleteAPIKey)
	}

	bg := &BackgroundServices{
		rateLimiters: []*middleware.RateLimiter{authRateLimiter, generalRateLimiter, uploadRateLimiter},
	}

	return router, bg, nil
}

// healthCheckHandler reports liveness: process up, database reachable.
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler reports readiness. Unlike the liveness probe, this also
// checks the storage backend so a readiness gate fails when uploads and
// downloads would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe with a known-absent sentinel key. Exists() exercises
		// authentication and connectivity without creating any state.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the service and API version.
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs every request through the process slog handler.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS for browser clients.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
