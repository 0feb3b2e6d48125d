package errors

import (
	"regexp"
	"unicode"
)

// maxIdentifierLength bounds processor and port identifiers.
const maxIdentifierLength = 128

// identifierRegex matches identifiers such as "Volume Source 2" or "outport_1".
var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.\-]*$`)

// ValidateIdentifier validates a processor or port identifier.
//
// The validation rules are intentionally conservative:
//   - No empty identifiers
//   - No control characters
//   - Must start with a letter or digit
//   - Maximum length of 128 characters
//   - No trailing whitespace (identifiers are used as map keys and DOT labels)
func ValidateIdentifier(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "identifier cannot be empty")
	}

	if len(id) > maxIdentifierLength {
		return New(ErrCodeInvalidInput, "identifier too long (max %d characters)", maxIdentifierLength)
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "identifier contains invalid control characters")
		}
	}

	if id[len(id)-1] == ' ' {
		return New(ErrCodeInvalidInput, "identifier cannot end with whitespace: %q", id)
	}

	if !identifierRegex.MatchString(id) {
		return New(ErrCodeInvalidInput, "invalid identifier: %q", id)
	}

	return nil
}
