// Package functions contains the built-in functions served by basefn.
package functions

import (
	"github.com/vyrodovalexey/basefn/internal/circuitbreaker"
	"github.com/vyrodovalexey/basefn/internal/observability"
	"github.com/vyrodovalexey/basefn/internal/retry"
	"github.com/vyrodovalexey/basefn/internal/runtime"
)

// Function names.
const (
	NamePing         = "ping"
	NameWhoAmI       = "whoami"
	NameSessionNotes = "session-notes"
)

// Definition pairs a function name with its handler.
type Definition struct {
	Name    string
	Handler runtime.HandlerFunc
}

// Deps are shared by the built-in functions.
type Deps struct {
	// Breakers guards datastore calls. A nil registry creates one with
	// default settings.
	Breakers *circuitbreaker.Registry

	// Retry configures retries of datastore calls.
	Retry retry.Config

	// MaxMessageLength bounds note messages.
	MaxMessageLength int

	Logger observability.Logger
}

// Builtins returns every built-in function.
func Builtins(deps Deps) []Definition {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Breakers == nil {
		cfg := circuitbreaker.DefaultConfig()
		cfg.IsSuccessful = circuitbreaker.IgnoreClientErrors
		deps.Breakers = circuitbreaker.NewRegistry(cfg, deps.Logger)
	}

	notes := &sessionNotes{
		breaker: deps.Breakers.Get("datastore"),
		retry:   deps.Retry,
		maxLen:  deps.MaxMessageLength,
		logger:  deps.Logger,
	}

	return []Definition{
		{Name: NamePing, Handler: Ping},
		{Name: NameWhoAmI, Handler: WhoAmI},
		{Name: NameSessionNotes, Handler: notes.Handle},
	}
}
