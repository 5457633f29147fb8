// slug.go validates the URL-safe identifiers (team, platform, system, core,
// game, and tag slugs) accepted when creating or renaming catalog entries.
package validation

import "regexp"

// slugPattern is the slug grammar: lowercase alphanumeric groups separated by
// single hyphens, starting with a letter. The grouping rules out leading or
// trailing hyphens and consecutive hyphens.
var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// MaxSlugLength bounds slug size so slugs stay usable as URL path segments
// and index keys.
const MaxSlugLength = 64

// reservedSlugs are words that collide with route segments or query keywords
// and can never be used as a slug. Matching is exact and case-sensitive: the
// grammar already rejects anything with uppercase letters.
var reservedSlugs = map[string]bool{
	"new":      true,
	"edit":     true,
	"delete":   true,
	"latest":   true,
	"all":      true,
	"me":       true,
	"owner":    true,
	"update":   true,
	"updates":  true,
	"release":  true,
	"releases": true,
	"popular":  true,
	"invalid":  true,
}

// SlugReason identifies which rule a rejected slug violated.
type SlugReason string

const (
	SlugEmpty    SlugReason = "empty"
	SlugTooLong  SlugReason = "too long"
	SlugGrammar  SlugReason = "grammar"
	SlugReserved SlugReason = "reserved"
)

// SlugError reports a rejected slug together with the violated rule so
// handlers can produce a precise user-facing message.
type SlugError struct {
	Value  string
	Reason SlugReason
}

func (e *SlugError) Error() string {
	switch e.Reason {
	case SlugEmpty:
		return "slug must not be empty"
	case SlugTooLong:
		return "slug exceeds maximum length"
	case SlugReserved:
		return "slug '" + e.Value + "' is a reserved word"
	default:
		return "slug '" + e.Value + "' must be lowercase alphanumeric groups separated by single hyphens, starting with a letter"
	}
}

// ValidateSlug checks a proposed slug against the grammar and the reserved
// word list. It is total over arbitrary input: malformed UTF-8 and oversized
// strings are rejected, never panicked on.
func ValidateSlug(s string) error {
	if s == "" {
		return &SlugError{Value: s, Reason: SlugEmpty}
	}
	if len(s) > MaxSlugLength {
		return &SlugError{Value: s, Reason: SlugTooLong}
	}
	if !slugPattern.MatchString(s) {
		return &SlugError{Value: s, Reason: SlugGrammar}
	}
	if reservedSlugs[s] {
		return &SlugError{Value: s, Reason: SlugReserved}
	}
	return nil
}

// IsReservedSlug reports whether s is in the reserved word list, regardless
// of whether it matches the grammar.
func IsReservedSlug(s string) bool {
	return reservedSlugs[s]
}
