package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/scrapegoat/backend/internal/tree"
)

// Length limits for request fields, in characters.
const (
	MaxQueryLength    = 64 * 1024
	MaxSelectorLength = 1024
	MaxFieldLength    = 256
	MaxURLLength      = 8 * 1024
)

// FieldPattern matches projection field names and output keys: an optional
// "@" followed by letters, digits, '_', '-', ':' or '.'.
var FieldPattern = regexp.MustCompile(`^@?[A-Za-z_][A-Za-z0-9_:.\-]*$`)

// String validates a string field with length and content checks
func String(value, fieldName string, minLen, maxLen int, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	if !utf8.ValidString(value) {
		return fmt.Errorf("%s is not valid UTF-8", fieldName)
	}

	return nil
}

// Query validates Goatspeak program text.
func Query(query string) error {
	return String(query, "query", 1, MaxQueryLength, true)
}

// Selector validates an optional CSS scope selector.
func Selector(selector string) error {
	return String(selector, "scope", 1, MaxSelectorLength, false)
}

// URL validates an optional document URL. Scheme checks happen when the
// document is fetched.
func URL(url string) error {
	return String(url, "url", 1, MaxURLLength, false)
}

// Field validates a field name such as "@href" or "body".
func Field(name, fieldName string) error {
	if err := String(name, fieldName, 1, MaxFieldLength, true); err != nil {
		return err
	}
	if !FieldPattern.MatchString(name) {
		return fmt.Errorf("%s %q contains invalid characters", fieldName, name)
	}
	return nil
}

// Location validates a node field to read, such as "@href" or "body".
// Unlike Field it rejects names that are not node fields.
func Location(name, fieldName string) error {
	if err := Field(name, fieldName); err != nil {
		return err
	}
	if !tree.IsField(name) {
		return fmt.Errorf("%s %q is not a node field", fieldName, name)
	}
	return nil
}
