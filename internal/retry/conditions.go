package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/vyrodovalexey/basefn/internal/apierr"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that IsTransient never retries it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// IsTransient is the default retry predicate. Envelopes are judged by
// code: SERVICE_UNAVAILABLE and INTERNAL_ERROR are retried, caller errors
// are not. Other errors are retried when they look like a network hiccup
// or an attempt deadline.
func IsTransient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}

	if e, ok := apierr.As(err); ok {
		return e.Code == apierr.CodeServiceUnavailable || e.Code == apierr.CodeInternal
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return IsNetworkError(err)
}

// IsNetworkError reports whether err is a timeout, reset, refused
// connection or premature close.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
