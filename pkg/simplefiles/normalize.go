package simplefiles

import (
	"fmt"
	"strings"
)

// ValidateFilename checks that name can be used as an object key on every
// backend, including the filesystem one.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidFilename)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: filename contains NUL", ErrInvalidFilename)
	}
	for _, segment := range strings.Split(strings.ReplaceAll(name, "\\", "/"), "/") {
		switch segment {
		case "..":
			return fmt.Errorf("%w: filename %q escapes its directory", ErrInvalidFilename, name)
		case ".":
			return fmt.Errorf("%w: filename %q contains a %q segment", ErrInvalidFilename, name, segment)
		}
	}
	return nil
}

// NormalizeContentType returns the MIME type to store, falling back to
// DefaultContentType.
func NormalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return DefaultContentType
	}
	return contentType
}
