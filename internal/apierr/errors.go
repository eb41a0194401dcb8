package apierr

import (
	"errors"
	"fmt"
	"maps"
)

// SafeInternalMessage is returned to callers for every unrecognized failure.
const SafeInternalMessage = "An internal error occurred"

// Sentinels for errors.Is matching by code.
var (
	ErrInvalidInput       = &Error{Code: CodeInvalidInput}
	ErrUnauthorized       = &Error{Code: CodeUnauthorized}
	ErrForbidden          = &Error{Code: CodeForbidden}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrRateLimitExceeded  = &Error{Code: CodeRateLimitExceeded}
	ErrServiceUnavailable = &Error{Code: CodeServiceUnavailable}
	ErrInternal           = &Error{Code: CodeInternal}
)

// Error is the envelope every failure is normalized into.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

// New creates an error envelope. An undefined code is replaced by INTERNAL_ERROR.
func New(code Code, message string, details ...map[string]any) *Error {
	if !code.Valid() {
		code = CodeInternal
	}
	e := &Error{Code: code, Message: message, Details: map[string]any{}}
	for _, d := range details {
		maps.Copy(e.Details, d)
	}
	return e
}

// Wrap creates an error envelope with an underlying cause.
func Wrap(cause error, code Code, message string) *Error {
	e := New(code, message)
	e.Cause = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code and either the same message
// or an empty target message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Status returns the HTTP status for the error's code.
func (e *Error) Status() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of e with details merged over the existing ones.
func (e *Error) WithDetails(details map[string]any) *Error {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+len(details))
	maps.Copy(out.Details, e.Details)
	maps.Copy(out.Details, details)
	return &out
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or
// INTERNAL_ERROR when there is none. CodeOf(nil) is the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// InvalidInput creates an INVALID_INPUT error.
func InvalidInput(message string) *Error { return New(CodeInvalidInput, message) }

// Unauthorized creates an UNAUTHORIZED error.
func Unauthorized(message string) *Error { return New(CodeUnauthorized, message) }

// Forbidden creates a FORBIDDEN error.
func Forbidden(message string) *Error { return New(CodeForbidden, message) }

// NotFound creates a NOT_FOUND error.
func NotFound(message string) *Error { return New(CodeNotFound, message) }

// RateLimited creates a RATE_LIMIT_EXCEEDED error.
func RateLimited(message string) *Error { return New(CodeRateLimitExceeded, message) }

// Unavailable creates a SERVICE_UNAVAILABLE error.
func Unavailable(message string) *Error { return New(CodeServiceUnavailable, message) }

// Internal creates an INTERNAL_ERROR error wrapping cause.
func Internal(cause error) *Error { return Wrap(cause, CodeInternal, SafeInternalMessage) }
