package vaultcrypt

import (
	"fmt"
)

// Input validation helpers for defensive programming. Parameter misuse is a
// programmer error, not a recoverable condition, so these surface as their
// own category rather than as decryption failures.

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Field   string // The parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidateOffset checks if a file offset is valid
func ValidateOffset(offset int64, name string) error {
	if offset < 0 {
		return &ValidationError{
			Field:   name,
			Value:   offset,
			Message: "offset cannot be negative",
		}
	}
	return nil
}

// ValidateLength checks if a length parameter is valid
func ValidateLength(length int64, name string) error {
	if length < 0 {
		return &ValidationError{
			Field:   name,
			Value:   length,
			Message: "length cannot be negative",
		}
	}
	return nil
}

// ValidateKeyBuffer checks that a key buffer has one of the allowed sizes
func ValidateKeyBuffer(key []byte, name string, sizes ...int) error {
	if key == nil {
		return &ValidationError{
			Field:   name,
			Message: "key cannot be nil",
		}
	}
	for _, s := range sizes {
		if len(key) == s {
			return nil
		}
	}
	return &ValidationError{
		Field:   name,
		Value:   len(key),
		Message: fmt.Sprintf("key has invalid size %d", len(key)),
	}
}
