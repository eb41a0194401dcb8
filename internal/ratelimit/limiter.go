// Package ratelimit provides the fixed-window rate limiter applied to
// function invocations.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/observability"
	"github.com/vyrodovalexey/basefn/internal/ratelimit/store"
)

// Defaults applied when a Config leaves fields unset.
const (
	DefaultLimit  = 100
	DefaultWindow = time.Minute
)

// FailurePolicy decides what happens when the counter store fails.
type FailurePolicy string

// Failure policies.
const (
	FailOpen   FailurePolicy = "open"
	FailClosed FailurePolicy = "closed"
)

// Valid reports whether p is a known policy.
func (p FailurePolicy) Valid() bool {
	return p == FailOpen || p == FailClosed
}

// Config holds limiter settings.
type Config struct {
	Limit         int
	Window        time.Duration
	FailurePolicy FailurePolicy
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Count      int64
	ResetTime  time.Time
	RetryAfter time.Duration

	// Degraded is set when the request was admitted without consulting
	// the store because the store failed.
	Degraded bool
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, at least 1.
func (d *Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// CheckRateLimit counts one request for identifier at now and decides
// whether it is admitted. The count is incremented even for rejected
// requests. Store errors are returned unchanged.
func CheckRateLimit(
	ctx context.Context,
	s store.Store,
	identifier string,
	limit int,
	window time.Duration,
	now time.Time,
) (*Decision, error) {
	rec, err := s.Hit(ctx, identifier, now, window)
	if err != nil {
		return nil, err
	}

	reset := rec.ResetTime(window)
	d := &Decision{
		Allowed:   rec.Count <= int64(limit),
		Limit:     limit,
		Count:     rec.Count,
		ResetTime: reset,
	}
	if remaining := int64(limit) - rec.Count; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if !d.Allowed {
		if retry := reset.Sub(now); retry > 0 {
			d.RetryAfter = retry
		}
	}
	return d, nil
}

// Limiter applies a Config on top of a store.
type Limiter struct {
	store       store.Store
	config      Config
	now         func() time.Time
	logger      observability.Logger
	storeErrors prometheus.Counter
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithRegisterer registers the limiter's metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(l *Limiter) {
		if r != nil {
			r.MustRegister(l.storeErrors)
		}
	}
}

// New creates a limiter.
func New(s store.Store, cfg Config, opts ...Option) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if !cfg.FailurePolicy.Valid() {
		cfg.FailurePolicy = FailOpen
	}

	l := &Limiter{
		store:  s,
		config: cfg,
		now:    time.Now,
		logger: observability.NopLogger(),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: observability.DefaultNamespace,
			Name:      "ratelimit_store_errors_total",
			Help:      "Rate limit checks that could not reach the counter store",
		}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.config
}

// Check applies the configured limit and window to identifier.
func (l *Limiter) Check(ctx context.Context, identifier string) (*Decision, error) {
	return l.CheckWith(ctx, identifier, l.config.Limit, l.config.Window)
}

// CheckWith applies an explicit limit and window to identifier. When the
// store fails the configured failure policy decides the outcome.
func (l *Limiter) CheckWith(ctx context.Context, identifier string, limit int, window time.Duration) (*Decision, error) {
	now := l.now()

	d, err := CheckRateLimit(ctx, l.store, identifier, limit, window, now)
	if err == nil {
		return d, nil
	}

	l.storeErrors.Inc()

	if l.config.FailurePolicy == FailClosed {
		l.logger.WithContext(ctx).Error("rate limit store unavailable, rejecting",
			observability.String("identifier", identifier),
			observability.Error(err),
		)
		return nil, apierr.Wrap(
			fmt.Errorf("rate limit check for %s: %w", identifier, err),
			apierr.CodeServiceUnavailable,
			"Rate limiting is temporarily unavailable",
		)
	}

	l.logger.WithContext(ctx).Warn("rate limit store unavailable, admitting request",
		observability.String("identifier", identifier),
		observability.Error(err),
	)
	return &Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetTime: now.Add(window),
		Degraded:  true,
	}, nil
}

// Close closes the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
