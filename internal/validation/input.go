package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validation limits for URL parameters
const (
	MaxUserIDLength = 100 // Max user ID length
	MinUserIDLength = 1   // Min user ID length
	MaxSearchLength = 100 // Max search query length, in characters
)

// userIDRegex matches the characters allowed in a user ID
var userIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FieldError reports an invalid request parameter. Field is the query or path
// parameter name as the client sent it.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldError(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateUserID validates a user ID from URL parameters
func ValidateUserID(userID string) error {
	if userID == "" {
		return fieldError("userId", "User ID cannot be empty")
	}
	if len(userID) > MaxUserIDLength {
		return fieldError("userId", "User ID too long")
	}
	if !userIDRegex.MatchString(userID) {
		return fieldError("userId", "User ID contains invalid characters")
	}
	return nil
}

// ValidateSearch trims a search query and checks its length.
func ValidateSearch(q string) (string, error) {
	if !utf8.ValidString(q) {
		return "", fieldError("q", "Search query must be valid UTF-8")
	}
	if utf8.RuneCountInString(q) > MaxSearchLength {
		return "", fieldError("q", "Search query too long")
	}
	return strings.TrimSpace(q), nil
}

// parseBoundedInt parses an optional integer parameter. An empty value
// yields def.
func parseBoundedInt(field, value string, def, lo, hi int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fieldError(field, "%s must be an integer", field)
	}
	if n < lo || n > hi {
		return 0, fieldError(field, "%s must be between %d and %d", field, lo, hi)
	}
	return n, nil
}
