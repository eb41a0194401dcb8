// Package store provides fixed-window counter backends for rate limiting.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Record is the window state of one identifier after a hit.
type Record struct {
	Identifier  string
	WindowStart time.Time
	Count       int64
}

// ResetTime returns the instant the record's window ends.
func (r Record) ResetTime(window time.Duration) time.Time {
	return r.WindowStart.Add(window)
}

// Store counts hits per identifier in fixed windows.
type Store interface {
	// Hit atomically counts one hit for identifier at now. When the stored
	// window began at least window ago, or there is none, a new window
	// starts at now with a count of 1; otherwise the count is incremented.
	Hit(ctx context.Context, identifier string, now time.Time, window time.Duration) (Record, error)

	// Close releases resources held by the store.
	Close() error
}

// expired reports whether a window that began at start has elapsed at now.
func expired(start, now time.Time, window time.Duration) bool {
	return now.Sub(start) >= window
}
