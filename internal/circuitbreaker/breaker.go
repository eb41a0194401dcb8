package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/observability"
)

var cbTracer = otel.Tracer("basefn/circuitbreaker")

// ErrOpen is wrapped by the error returned while the circuit rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

// Breaker states.
const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// StateChangeFunc observes state transitions.
type StateChangeFunc func(name string, from, to State)

// CircuitBreaker wraps gobreaker with a fixed consecutive-failure policy
// and a single half-open probe.
type CircuitBreaker struct {
	name     string
	cb       *gobreaker.CircuitBreaker
	logger   observability.Logger
	onChange StateChangeFunc
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// WithStateChange registers a transition callback.
func WithStateChange(fn StateChangeFunc) Option {
	return func(cb *CircuitBreaker) {
		cb.onChange = fn
	}
}

// New creates a circuit breaker.
func New(name string, cfg Config, opts ...Option) *CircuitBreaker {
	cfg = cfg.normalized()

	cb := &CircuitBreaker{
		name:   name,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(cb)
	}

	threshold := safeIntToUint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful:  cfg.IsSuccessful,
		OnStateChange: cb.stateChanged,
	}

	cb.cb = gobreaker.NewCircuitBreaker(settings)
	breakerState.WithLabelValues(name).Set(float64(StateClosed))
	return cb
}

func (cb *CircuitBreaker) stateChanged(name string, from, to gobreaker.State) {
	f, t := fromGobreaker(from), fromGobreaker(to)

	cb.logger.Info("circuit breaker state change",
		observability.String("name", name),
		observability.String("from", f.String()),
		observability.String("to", t.String()),
	)

	breakerState.WithLabelValues(name).Set(float64(t))
	breakerStateChangesTotal.WithLabelValues(name, f.String(), t.String()).Inc()

	_, span := cbTracer.Start(context.Background(),
		"circuitbreaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent("state_change", trace.WithAttributes(
		attribute.String("circuitbreaker.name", name),
		attribute.String("circuitbreaker.from", f.String()),
		attribute.String("circuitbreaker.to", t.String()),
	))
	span.End()

	if cb.onChange != nil {
		cb.onChange(name, f, t)
	}
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	return fromGobreaker(cb.cb.State())
}

// Execute runs op unless the circuit is open. While open, or while the
// half-open probe is in flight, it returns a SERVICE_UNAVAILABLE error
// wrapping ErrOpen without running op. Errors from op are returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Call(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Call is Execute for operations that produce a value.
func Call[T any](ctx context.Context, cb *CircuitBreaker, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	res, err := cb.cb.Execute(func() (interface{}, error) {
		return op(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		breakerRequestsTotal.WithLabelValues(cb.name, "rejected").Inc()
		return zero, apierr.Wrap(
			fmt.Errorf("%s: %w", cb.name, ErrOpen),
			apierr.CodeServiceUnavailable,
			"Service temporarily unavailable",
		)
	}
	if err != nil {
		breakerRequestsTotal.WithLabelValues(cb.name, "failure").Inc()
		return zero, err
	}

	breakerRequestsTotal.WithLabelValues(cb.name, "success").Inc()
	v, _ := res.(T)
	return v, nil
}
