package store

import (
	"context"
	"sync"
	"time"
)

// maxCASRetries bounds the lock-free compare-and-swap loop. Past it, hits
// on the store are serialized.
const maxCASRetries = 100

// DefaultCleanupInterval is how often expired windows are evicted.
const DefaultCleanupInterval = time.Minute

// entry is an immutable window snapshot; updates swap in a new entry.
type entry struct {
	windowStart time.Time
	count       int64
	window      time.Duration
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	data       sync.Map
	casRetries int
	contended  sync.Mutex
	cleanup    *time.Ticker
	done       chan struct{}
	mu         sync.Mutex
	closed     bool
}

// NewMemoryStore creates an in-memory store with the default cleanup interval.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanupInterval(DefaultCleanupInterval)
}

// NewMemoryStoreWithCleanupInterval creates an in-memory store with a custom cleanup interval.
func NewMemoryStoreWithCleanupInterval(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		casRetries: maxCASRetries,
		cleanup:    time.NewTicker(interval),
		done:       make(chan struct{}),
	}

	go s.startCleanup()

	return s
}

// Hit implements Store.
func (s *MemoryStore) Hit(ctx context.Context, identifier string, now time.Time, window time.Duration) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	for retries := 0; retries < s.casRetries; retries++ {
		if rec, ok := s.tryHit(identifier, now, window); ok {
			return rec, nil
		}
	}

	s.contended.Lock()
	defer s.contended.Unlock()
	for {
		if rec, ok := s.tryHit(identifier, now, window); ok {
			return rec, nil
		}
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
	}
}

// tryHit makes one compare-and-swap attempt. It fails only when the entry
// for identifier changed since it was loaded.
func (s *MemoryStore) tryHit(identifier string, now time.Time, window time.Duration) (Record, bool) {
	fresh := &entry{windowStart: now, count: 1, window: window}

	value, loaded := s.data.LoadOrStore(identifier, fresh)
	if !loaded {
		return fresh.record(identifier), true
	}

	e := value.(*entry)
	next := fresh
	if !expired(e.windowStart, now, window) {
		next = &entry{windowStart: e.windowStart, count: e.count + 1, window: window}
	}

	if s.data.CompareAndSwap(identifier, e, next) {
		return next.record(identifier), true
	}
	return Record{}, false
}

func (e *entry) record(identifier string) Record {
	return Record{Identifier: identifier, WindowStart: e.windowStart, Count: e.count}
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.cleanup.Stop()
	close(s.done)

	return nil
}

func (s *MemoryStore) startCleanup() {
	for {
		select {
		case <-s.cleanup.C:
			s.cleanupExpired(time.Now())
		case <-s.done:
			return
		}
	}
}

// cleanupExpired evicts windows that have elapsed at now. An evicted
// identifier behaves exactly like one whose window reset.
func (s *MemoryStore) cleanupExpired(now time.Time) {
	s.data.Range(func(key, value any) bool {
		e := value.(*entry)
		if expired(e.windowStart, now, e.window) {
			s.data.CompareAndDelete(key, e)
		}
		return true
	})
}

// Size returns the number of tracked identifiers.
func (s *MemoryStore) Size() int {
	count := 0
	s.data.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
