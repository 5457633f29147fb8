// version.go validates release version strings and provides the ordering used
// to resolve "latest" queries. The grammar is looser than strict semver —
// emulator cores version themselves in many styles ("1.0.0", "20240101",
// "0.9-beta2") — so comparison delegates to hashicorp/go-version when both
// operands parse as semver-ish and falls back to segment-wise comparison
// otherwise.
package validation

import (
	"regexp"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// versionPattern is the version grammar: lowercase alphanumeric segments
// separated by dots or hyphens.
var versionPattern = regexp.MustCompile(`^[a-z0-9]+([.-][a-z0-9]+)*$`)

// MaxVersionLength bounds version strings the same way slugs are bounded.
const MaxVersionLength = 64

// VersionReason identifies which rule a rejected version violated.
type VersionReason string

const (
	VersionEmpty    VersionReason = "empty"
	VersionTooLong  VersionReason = "too long"
	VersionGrammar  VersionReason = "grammar"
	VersionReserved VersionReason = "reserved"
)

// VersionError reports a rejected version string and the violated rule.
type VersionError struct {
	Value  string
	Reason VersionReason
}

func (e *VersionError) Error() string {
	switch e.Reason {
	case VersionEmpty:
		return "version must not be empty"
	case VersionTooLong:
		return "version exceeds maximum length"
	case VersionReserved:
		return "version cannot be 'latest'"
	default:
		return "version '" + e.Value + "' must be lowercase alphanumeric segments separated by dots or hyphens"
	}
}

// ValidateVersion checks a proposed release version string. "latest" is
// reserved for the most-recent-release query and is rejected even though it
// matches the grammar. Total over arbitrary input.
func ValidateVersion(s string) error {
	if s == "" {
		return &VersionError{Value: s, Reason: VersionEmpty}
	}
	if len(s) > MaxVersionLength {
		return &VersionError{Value: s, Reason: VersionTooLong}
	}
	if !versionPattern.MatchString(s) {
		return &VersionError{Value: s, Reason: VersionGrammar}
	}
	if s == "latest" {
		return &VersionError{Value: s, Reason: VersionReserved}
	}
	return nil
}

// CompareVersions orders two validated version strings.
// Returns -1 if a < b, 0 if equal, 1 if a > b.
//
// Both operands parsing as semver-ish is the common case and is handled by
// hashicorp/go-version, which gets prerelease ordering right ("1.0.0-rc1" <
// "1.0.0"). Strings outside what go-version accepts are compared segment by
// segment: numeric segments numerically, everything else lexically, with a
// shorter version sorting before a longer one sharing its prefix.
func CompareVersions(a, b string) int {
	if a == b {
		return 0
	}
	va, errA := goversion.NewVersion(a)
	vb, errB := goversion.NewVersion(b)
	if errA == nil && errB == nil {
		if c := va.Compare(vb); c != 0 {
			return c
		}
		// go-version treats "1.0" and "1.0.0" as equal; break the tie
		// deterministically so sorts are stable across queries.
		return strings.Compare(a, b)
	}

	sa := strings.FieldsFunc(a, isVersionSeparator)
	sb := strings.FieldsFunc(b, isVersionSeparator)
	for i := 0; i < len(sa) && i < len(sb); i++ {
		if c := compareSegment(sa[i], sb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(sa) < len(sb):
		return -1
	case len(sa) > len(sb):
		return 1
	default:
		return 0
	}
}

func isVersionSeparator(r rune) bool {
	return r == '.' || r == '-'
}

func compareSegment(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	case errA == nil:
		// Numeric segments sort before alphanumeric ones.
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
