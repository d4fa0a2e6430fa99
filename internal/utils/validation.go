package utils

import (
	"fmt"
	"strings"
	"unicode"
)

const MaxNameLength = 64

// ValidateName checks a room or user name. Names become store path segments,
// local directory and file names and "/"-joined list entries, so path
// separators and the "." and ".." segments are rejected, as is a leading "!"
// which the chat input reserves for approval commands.
func ValidateName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError(kind + " cannot be empty")
	}
	if name != strings.TrimSpace(name) {
		return ValidationError(kind + " cannot start or end with whitespace")
	}
	if len(name) > MaxNameLength {
		return ValidationError(fmt.Sprintf("%s exceeds maximum length of %d", kind, MaxNameLength))
	}
	if strings.ContainsAny(name, `/\`) {
		return ValidationError(kind + ` cannot contain '/' or '\'`)
	}
	if name == "." || name == ".." {
		return ValidationError(kind + " cannot be '.' or '..'")
	}
	if strings.HasPrefix(name, "!") {
		return ValidationError(kind + " cannot start with '!'")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return ValidationError(kind + " cannot contain control characters")
		}
	}
	return nil
}
