package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Tag is a named, colored label attached to files and declared on functions.
// Names are globally unique. Names beginning with "." are reserved for
// extension tags, which are created implicitly from file extensions and whose
// names are immutable.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultExtensionTagColor is applied to implicitly created extension tags.
const DefaultExtensionTagColor = "#9ca3af"

// IsExtension reports whether the tag is an implicit extension tag.
func (t *Tag) IsExtension() bool {
	return IsExtensionTagName(t.Name)
}

// IsExtensionTagName reports whether the name is in the reserved extension
// tag namespace.
func IsExtensionTagName(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ValidateTagName checks a user-supplied tag name. Extension names and names
// containing "~" are rejected.
func ValidateTagName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: tag name is empty", ErrForbidden)
	}
	if IsExtensionTagName(name) {
		return fmt.Errorf("%w: tag names starting with %q are reserved for extension tags", ErrForbidden, ".")
	}
	if strings.Contains(name, "~") {
		return fmt.Errorf("%w: tag name must not contain %q", ErrForbidden, "~")
	}
	return nil
}

// ExtensionTagName derives the extension tag name for a display name:
// "." followed by the lowercased substring after the last dot. It returns ""
// when the name has no extension or ends in a dot.
func ExtensionTagName(displayName string) string {
	ext := filepath.Ext(filepath.Base(displayName))
	if ext == "" || ext == "." {
		return ""
	}
	return strings.ToLower(ext)
}
