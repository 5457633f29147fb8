// Package httperr owns the translation from the typed error taxonomy of the
// release, artifact, validation, and auth subsystems to HTTP status codes.
// Handlers never inspect error internals themselves; they hand the error to
// Write and move on. The mapping lives in one place so the wire contract
// cannot drift between handler packages.
package httperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corevault-registry/corevault-registry/internal/artifacts"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/releases"
	"github.com/corevault-registry/corevault-registry/internal/validation"
)

// Status maps a domain error to its HTTP status code. Unrecognized errors
// map to 500.
func Status(err error) int {
	var slugErr *validation.SlugError
	var versionErr *validation.VersionError
	var ingestErr *artifacts.IngestError

	switch {
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, releases.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, releases.ErrDuplicateVersion),
		errors.Is(err, releases.ErrAlreadyYanked):
		return http.StatusConflict
	case errors.As(err, &slugErr),
		errors.As(err, &versionErr),
		errors.Is(err, validation.ErrInvalidFilename),
		errors.Is(err, releases.ErrNoArtifacts),
		errors.Is(err, releases.ErrDuplicateFilename),
		errors.Is(err, releases.ErrPlatformMismatch),
		errors.Is(err, releases.ErrPrereleaseRestore),
		errors.Is(err, artifacts.ErrMissingDownloadURL):
		return http.StatusBadRequest
	case errors.As(err, &ingestErr):
		if errors.Is(err, artifacts.ErrTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadGateway
	case errors.Is(err, releases.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Write responds with the mapped status and a JSON error body. Internal
// errors get a generic message so backend details never leak to clients.
func Write(c *gin.Context, err error) {
	status := Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}

// RetryUnavailable runs fn and retries it exactly once if it failed with
// ErrUnavailable. This is the only retry in the request path; the ledger and
// repositories below never retry, so a transient infrastructure blip costs at
// most one extra round trip.
func RetryUnavailable(fn func() error) error {
	err := fn()
	if errors.Is(err, releases.ErrUnavailable) {
		return fn()
	}
	return err
}
