package apierr

import "net/http"

// Code is a machine-readable error classification.
type Code string

// Error codes.
const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Codes returns every defined code.
func Codes() []Code {
	return []Code{
		CodeInvalidInput,
		CodeUnauthorized,
		CodeForbidden,
		CodeNotFound,
		CodeRateLimitExceeded,
		CodeServiceUnavailable,
		CodeInternal,
	}
}

// Valid reports whether c is one of the defined codes.
func (c Code) Valid() bool {
	switch c {
	case CodeInvalidInput, CodeUnauthorized, CodeForbidden, CodeNotFound,
		CodeRateLimitExceeded, CodeServiceUnavailable, CodeInternal:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status for c. Unknown codes map to 500.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ClientError reports whether c describes a problem with the request
// rather than with the service.
func (c Code) ClientError() bool {
	status := c.HTTPStatus()
	return status >= 400 && status < 500
}
