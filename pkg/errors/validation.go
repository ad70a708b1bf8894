package errors

import (
	"math"
	"strings"
	"unicode"
)

// maxNameLength bounds parameter and measurement names.
const maxNameLength = 128

// ValidateIdentifier validates a parameter name.
//
// Names must start with a letter or underscore and contain only letters,
// digits and underscores, so they can be referenced from expressions.
func ValidateIdentifier(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return New(ErrCodeInvalidName, "name cannot be empty")
	}
	if len(name) > maxNameLength {
		return New(ErrCodeInvalidName, "name too long (max %d characters)", maxNameLength)
	}
	for i, r := range name {
		switch {
		case r == '_', unicode.IsLetter(r):
		case unicode.IsDigit(r) && i > 0:
		default:
			return New(ErrCodeInvalidName, "invalid parameter name: %q", name)
		}
	}
	return nil
}

// ValidateSignalName validates a measurement name.
//
// Signal names are looser than identifiers: dots separate namespaces
// ("load.P3.mag") and spaces are tolerated for display names, but control
// characters are rejected.
func ValidateSignalName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidName, "signal name cannot be empty")
	}
	if len(name) > maxNameLength {
		return New(ErrCodeInvalidName, "signal name too long (max %d characters)", maxNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidName, "signal name contains invalid control characters")
		}
	}
	return nil
}

// ValidateFinite rejects NaN and infinite values for the named field.
func ValidateFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return New(ErrCodeInvalidModel, "%s must be finite, got %v", field, v)
	}
	return nil
}

// ValidatePath validates a file path supplied on the command line or
// through the API.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 1024 characters
//   - No null bytes or control characters
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}
	if len(path) > 1024 {
		return New(ErrCodeInvalidPath, "path too long (max 1024 characters)")
	}
	for _, r := range path {
		if r == 0 || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid control characters")
		}
	}
	return nil
}
