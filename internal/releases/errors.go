// errors.go defines the release ledger's error taxonomy. Handlers map these
// onto HTTP statuses; everything else that escapes the ledger is an
// infrastructure fault.
package releases

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicateVersion means the version slot for the target is already
	// occupied. Yanked releases occupy their slot forever.
	ErrDuplicateVersion = errors.New("version already exists for this target")

	// ErrNotFound means the referenced release (or target) does not exist.
	ErrNotFound = errors.New("release not found")

	// ErrUnavailable wraps a collaborator failure (database, object store)
	// that a retry may resolve.
	ErrUnavailable = errors.New("release ledger temporarily unavailable")

	// ErrAlreadyYanked means a yank was requested for a release that is
	// already yanked.
	ErrAlreadyYanked = errors.New("release is already yanked")

	// ErrPrereleaseRestore means an edit tried to set the prerelease flag on
	// a release that already shed it. Promotion is one-way.
	ErrPrereleaseRestore = errors.New("prerelease flag cannot be restored")

	// ErrNoArtifacts means a release creation carried no files at all.
	ErrNoArtifacts = errors.New("release requires at least one artifact")

	// ErrDuplicateFilename means two files in one release share a filename.
	ErrDuplicateFilename = errors.New("duplicate filename within release")

	// ErrPlatformMismatch means a core release is missing its platform, or a
	// system release carries one.
	ErrPlatformMismatch = errors.New("platform does not fit release target kind")
)

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation, the signature of a concurrent creation of the same version.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
