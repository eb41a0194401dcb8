package secrets

import (
	"errors"
	"fmt"
)

// Common errors for secret resolution.
var (
	ErrSecretNotFound = errors.New("secrets: secret not found")
	ErrInvalidConfig  = errors.New("secrets: invalid configuration")
	ErrInvalidField   = errors.New("secrets: field is not a string")
)

// Error describes a failed secret operation.
type Error struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("secrets %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("secrets %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
