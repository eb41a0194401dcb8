package store

import (
	"context"
	"fmt"
	"time"
)

// WindowCounter is a datastore able to perform the fixed-window hit as a
// single conditional write.
type WindowCounter interface {
	HitRateLimit(ctx context.Context, identifier string, now time.Time, window time.Duration) (time.Time, int64, error)
}

// SQLStore implements Store on top of the function datastore.
type SQLStore struct {
	db WindowCounter
}

// NewSQLStore creates a store backed by db. The store does not own db.
func NewSQLStore(db WindowCounter) *SQLStore {
	return &SQLStore{db: db}
}

// Hit implements Store.
func (s *SQLStore) Hit(ctx context.Context, identifier string, now time.Time, window time.Duration) (Record, error) {
	start, count, err := s.db.HitRateLimit(ctx, identifier, now, window)
	if err != nil {
		return Record{}, fmt.Errorf("datastore hit %s: %w", identifier, err)
	}
	return Record{Identifier: identifier, WindowStart: start, Count: count}, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return nil
}
