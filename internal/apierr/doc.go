// Package apierr defines the closed set of error codes returned by functions,
// the error envelope carried through a request, and the conversion of any
// raised value into a caller-safe HTTP response.
//
// # Error Conventions
//
//   - Components raise *Error values built with New or one of the code
//     helpers. Everything else is treated as an internal failure.
//   - Details and Cause are for logs and the audit trail only; they are
//     never serialized into a response body.
//   - errors.Is(err, ErrNotFound) matches any *Error carrying NOT_FOUND.
package apierr
