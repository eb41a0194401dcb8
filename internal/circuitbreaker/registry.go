package circuitbreaker

import (
	"sync"

	"github.com/vyrodovalexey/basefn/internal/observability"
)

// Registry holds the process-wide breakers, one per dependency name.
type Registry struct {
	breakers sync.Map
	config   Config
	logger   observability.Logger
}

// NewRegistry creates a registry whose breakers share cfg.
func NewRegistry(cfg Config, logger observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Registry{config: cfg.normalized(), logger: logger}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	if value, ok := r.breakers.Load(name); ok {
		return value.(*CircuitBreaker)
	}

	cb := New(name, r.config, WithLogger(r.logger))
	actual, loaded := r.breakers.LoadOrStore(name, cb)
	if loaded {
		return actual.(*CircuitBreaker)
	}

	r.logger.Debug("created circuit breaker", observability.String("name", name))
	return cb
}

// States returns the current state of every breaker.
func (r *Registry) States() map[string]State {
	out := make(map[string]State)
	r.breakers.Range(func(key, value any) bool {
		out[key.(string)] = value.(*CircuitBreaker).State()
		return true
	})
	return out
}
