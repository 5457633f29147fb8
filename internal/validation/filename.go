// filename.go validates declared artifact filenames before they are stored
// alongside release metadata and echoed back in Content-Disposition headers.
package validation

import (
	"errors"
	"strings"
	"unicode"
)

// MaxFilenameLength bounds declared filenames.
const MaxFilenameLength = 255

// filenamePunctuation is the set of non-alphanumeric characters allowed in an
// artifact filename.
const filenamePunctuation = "()[]{}<>-_+=!@#$%^&*~,. "

// ErrInvalidFilename is returned for filenames containing characters outside
// the allowed set, empty names, or path-traversal attempts.
var ErrInvalidFilename = errors.New("invalid artifact filename")

// ValidateFilename checks a declared artifact filename. Path separators are
// never allowed, so a stored filename can be echoed into a header or joined
// under a directory without escaping.
func ValidateFilename(name string) error {
	if name == "" || len(name) > MaxFilenameLength {
		return ErrInvalidFilename
	}
	if strings.Contains(name, "..") {
		return ErrInvalidFilename
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		if !strings.ContainsRune(filenamePunctuation, r) {
			return ErrInvalidFilename
		}
	}
	return nil
}
