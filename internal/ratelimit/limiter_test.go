package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/ratelimit/store"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingStore struct{ err error }

func (f failingStore) Hit(context.Context, string, time.Time, time.Duration) (store.Record, error) {
	return store.Record{}, f.err
}

func (failingStore) Close() error { return nil }

func TestCheckRateLimit_WindowLifecycle(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	defer s.Close()

	clock := newFakeClock()
	start := clock.Now()
	ctx := context.Background()

	// Five requests inside the window are admitted.
	for i := 1; i <= 5; i++ {
		d, err := CheckRateLimit(ctx, s, "notes:ip:1.2.3.4", 5, time.Minute, clock.Now())
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 5-i, d.Remaining)
		clock.Advance(time.Second)
	}

	// The sixth is rejected with a reset time one window after the first.
	d, err := CheckRateLimit(ctx, s, "notes:ip:1.2.3.4", 5, time.Minute, clock.Now())
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, start.Add(time.Minute), d.ResetTime)
	assert.Equal(t, 55*time.Second, d.RetryAfter)
	assert.Equal(t, 55, d.RetryAfterSeconds())

	// After the reset the identifier is admitted again.
	clock.Advance(55 * time.Second)
	d, err = CheckRateLimit(ctx, s, "notes:ip:1.2.3.4", 5, time.Minute, clock.Now())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestCheckRateLimit_RejectedRequestsStillCount(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	defer s.Close()
	now := newFakeClock().Now()

	for i := 0; i < 4; i++ {
		_, err := CheckRateLimit(context.Background(), s, "k", 2, time.Minute, now)
		require.NoError(t, err)
	}
	d, err := CheckRateLimit(context.Background(), s, "k", 2, time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.Count)
	assert.False(t, d.Allowed)
}

func TestCheckRateLimit_StoreErrorReturned(t *testing.T) {
	t.Parallel()

	boom := errors.New("down")
	_, err := CheckRateLimit(context.Background(), failingStore{err: boom}, "k", 1, time.Minute, time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestLimiter_ConcurrentAdmission(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	defer s.Close()

	clock := newFakeClock()
	l := New(s, Config{Limit: 1, Window: time.Minute}, WithClock(clock.Now))

	const workers = 50
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(context.Background(), "notes:user:u1")
			if err == nil && d.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), admitted.Load())
}

func TestLimiter_FailOpen(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	l := New(failingStore{err: errors.New("redis down")}, Config{Limit: 3, Window: time.Minute},
		WithRegisterer(reg))

	d, err := l.Check(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)
	assert.Equal(t, 3, d.Remaining)
	assert.Equal(t, float64(1), testutil.ToFloat64(l.storeErrors))
}

func TestLimiter_FailClosed(t *testing.T) {
	t.Parallel()

	boom := errors.New("redis down")
	l := New(failingStore{err: boom}, Config{Limit: 3, Window: time.Minute, FailurePolicy: FailClosed})

	d, err := l.Check(context.Background(), "k")
	assert.Nil(t, d)
	assert.ErrorIs(t, err, apierr.ErrServiceUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	l := New(store.NewMemoryStore(), Config{FailurePolicy: "sideways"})
	defer l.Close()

	cfg := l.Config()
	assert.Equal(t, DefaultLimit, cfg.Limit)
	assert.Equal(t, DefaultWindow, cfg.Window)
	assert.Equal(t, FailOpen, cfg.FailurePolicy)
}

func TestLimiter_CheckWith(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(store.NewMemoryStore(), Config{Limit: 100, Window: time.Hour}, WithClock(clock.Now))
	defer l.Close()

	d, err := l.CheckWith(context.Background(), "k", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.CheckWith(context.Background(), "k", 1, time.Second)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.RetryAfterSeconds())
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, (&Decision{}).RetryAfterSeconds())
	assert.Equal(t, 2, (&Decision{RetryAfter: 1100 * time.Millisecond}).RetryAfterSeconds())
	assert.Equal(t, 30, (&Decision{RetryAfter: 30 * time.Second}).RetryAfterSeconds())
}
