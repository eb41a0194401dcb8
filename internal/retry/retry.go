package retry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vyrodovalexey/basefn/internal/observability"
)

// Defaults.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 100 * time.Millisecond
	DefaultMaxDelay   = 30 * time.Second

	// MaxJitterFactor is the largest accepted jitter factor.
	MaxJitterFactor = 1.0
)

// ErrNoRetryPredicate is returned when Do is called without a predicate.
var ErrNoRetryPredicate = errors.New("retry: shouldRetry predicate is required")

// Config contains retry parameters. MaxRetries counts retries after the
// first attempt, so the operation runs at most MaxRetries+1 times.
type Config struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

func (c Config) normalized() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > MaxJitterFactor {
		c.JitterFactor = MaxJitterFactor
	}
	return c
}

// Operation is a retryable unit of work.
type Operation func(ctx context.Context) error

// ShouldRetryFunc reports whether err is worth another attempt.
type ShouldRetryFunc func(err error) bool

// OnRetryFunc is called before sleeping ahead of the given attempt (2-based).
type OnRetryFunc func(attempt int, err error, delay time.Duration)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type options struct {
	name    string
	onRetry OnRetryFunc
	sleep   SleepFunc
	logger  observability.Logger
}

// Option configures a single Do call.
type Option func(*options)

// WithName labels the operation in metrics and logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithOnRetry registers a callback invoked before each retry.
func WithOnRetry(fn OnRetryFunc) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(o *options) {
		o.sleep = fn
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op until it succeeds, returns an error shouldRetry rejects, or
// the attempts are exhausted. On exhaustion the last error is returned
// unchanged.
func Do(ctx context.Context, cfg Config, op Operation, shouldRetry ShouldRetryFunc, opts ...Option) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, shouldRetry, opts...)
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](
	ctx context.Context,
	cfg Config,
	op func(ctx context.Context) (T, error),
	shouldRetry ShouldRetryFunc,
	opts ...Option,
) (T, error) {
	var zero T
	if shouldRetry == nil {
		return zero, ErrNoRetryPredicate
	}

	o := &options{
		name:   "default",
		sleep:  sleepContext,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	cfg = cfg.normalized()

	start := time.Now()
	defer func() {
		retryDuration.WithLabelValues(o.name).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return zero, err
			}
			return zero, fmt.Errorf("%w (last error: %w)", err, lastErr)
		}

		retryAttemptsTotal.WithLabelValues(o.name, strconv.Itoa(attempt)).Inc()

		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				retrySuccessTotal.WithLabelValues(o.name).Inc()
			}
			return v, nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == cfg.MaxRetries+1 {
			break
		}

		delay := CalculateBackoff(attempt-1, cfg.BaseDelay, cfg.MaxDelay, cfg.JitterFactor)
		if o.onRetry != nil {
			o.onRetry(attempt+1, err, delay)
		}
		o.logger.WithContext(ctx).Debug("retrying operation",
			observability.String("operation", o.name),
			observability.Int("next_attempt", attempt+1),
			observability.Duration("delay", delay),
			observability.Error(err),
		)

		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			return zero, fmt.Errorf("%w (last error: %w)", sleepErr, lastErr)
		}
	}

	retryFailureTotal.WithLabelValues(o.name).Inc()
	return zero, lastErr
}
