// Package catalog implements the HTTP handlers for the catalog entities:
// platforms, systems, cores, games, and tags. Reads are public; every write
// funnels through the authorizer with ActionManageCatalog against the owning
// team of the touched resource.
package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
	"github.com/corevault-registry/corevault-registry/internal/db/repositories"
	"github.com/corevault-registry/corevault-registry/internal/middleware"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Handlers bundles the catalog endpoints and their dependencies.
type Handlers struct {
	catalog    *repositories.CatalogRepository
	tags       *repositories.TagRepository
	authz      *auth.Authorizer
	rootTeamID int64
}

// NewHandlers creates the catalog handler set. rootTeamID scopes global-tag
// management; pass 0 for the default root team.
func NewHandlers(catalog *repositories.CatalogRepository, tags *repositories.TagRepository, authz *auth.Authorizer, rootTeamID int64) *Handlers {
	if rootTeamID == 0 {
		rootTeamID = models.RootTeamID
	}
	return &Handlers{catalog: catalog, tags: tags, authz: authz, rootTeamID: rootTeamID}
}

// pagination extracts limit/offset query parameters with sane bounds.
func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// principal pulls the authenticated principal set by the auth middleware,
// aborting with 401 when the request carried no valid credential.
func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return auth.Principal{}, false
	}
	return p, true
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation, which on catalog inserts means a taken slug or name.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
