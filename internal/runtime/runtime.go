package runtime

import (
	"context"
	"net/http"
	"time"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/auth"
	"github.com/vyrodovalexey/basefn/internal/datastore"
	"github.com/vyrodovalexey/basefn/internal/observability"
	"github.com/vyrodovalexey/basefn/internal/ratelimit"
	"github.com/vyrodovalexey/basefn/internal/reqctx"
)

// DefaultMaxBodyBytes is the request body limit when none is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// HandlerFunc is a function's business logic. The returned value is
// wrapped in the success envelope; a returned error goes through the
// error boundary.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// IdentityResolver classifies the caller of a request.
type IdentityResolver interface {
	Resolve(r *http.Request) (auth.Identity, error)
}

// RateLimiter admits or rejects requests per identifier.
type RateLimiter interface {
	CheckWith(ctx context.Context, identifier string, limit int, window time.Duration) (*ratelimit.Decision, error)
	Config() ratelimit.Config
}

// Deps are the shared collaborators of every function.
type Deps struct {
	Resolver  IdentityResolver
	Limiter   RateLimiter
	Datastore *datastore.DB
	Errors    *apierr.Handler
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
	Logger    observability.Logger
}

// Runtime builds function handlers sharing one set of dependencies.
type Runtime struct {
	deps         Deps
	logger       observability.Logger
	now          func() time.Time
	newID        func() string
	maxBodyBytes int64
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(rt *Runtime) {
		rt.now = now
	}
}

// WithRequestIDGenerator sets the request id generator.
func WithRequestIDGenerator(gen func() string) Option {
	return func(rt *Runtime) {
		rt.newID = gen
	}
}

// WithDefaultMaxBodyBytes sets the body limit for functions that do not
// set their own.
func WithDefaultMaxBodyBytes(n int64) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxBodyBytes = n
		}
	}
}

// New creates a Runtime. Missing dependencies fall back to inert
// defaults: anonymous identity resolution, no rate limiting, no
// datastore, no-op logging, metrics and tracing.
func New(deps Deps, opts ...Option) *Runtime {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Resolver == nil {
		deps.Resolver = auth.NewResolver("", nil, auth.WithLogger(deps.Logger))
	}
	if deps.Errors == nil {
		deps.Errors = apierr.NewHandler(apierr.WithLogger(deps.Logger))
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics(observability.DefaultNamespace)
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NoopTracer()
	}

	rt := &Runtime{
		deps:         deps,
		logger:       deps.Logger,
		now:          time.Now,
		newID:        reqctx.NewRequestID,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// FunctionOption configures one function.
type FunctionOption func(*function)

// WithRateLimit overrides the limit and window for the function.
func WithRateLimit(limit int, window time.Duration) FunctionOption {
	return func(f *function) {
		f.limit = limit
		f.window = window
	}
}

// WithoutRateLimit disables rate limiting for the function.
func WithoutRateLimit() FunctionOption {
	return func(f *function) {
		f.rateLimited = false
	}
}

// WithMaxBodyBytes sets the request body limit for the function.
func WithMaxBodyBytes(n int64) FunctionOption {
	return func(f *function) {
		f.maxBodyBytes = n
	}
}

// Function wraps handler with the request pipeline.
func (rt *Runtime) Function(name string, handler HandlerFunc, opts ...FunctionOption) http.Handler {
	f := &function{
		rt:           rt,
		name:         name,
		handler:      handler,
		rateLimited:  true,
		maxBodyBytes: rt.maxBodyBytes,
	}
	if rt.deps.Limiter != nil {
		cfg := rt.deps.Limiter.Config()
		f.limit, f.window = cfg.Limit, cfg.Window
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}
