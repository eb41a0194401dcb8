// Package circuitbreaker stops calling a failing downstream dependency
// until it has had time to recover.
package circuitbreaker

import (
	"time"

	"github.com/vyrodovalexey/basefn/internal/apierr"
)

// Defaults.
const (
	DefaultFailureThreshold = 5
	DefaultTimeout          = 60 * time.Second
)

// Config holds breaker settings.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration

	// IsSuccessful classifies an operation error. A nil classifier counts
	// every non-nil error as a failure.
	IsSuccessful func(err error) bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		Timeout:          DefaultTimeout,
	}
}

func (c Config) normalized() Config {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// IgnoreClientErrors treats errors caused by the caller (4xx envelopes)
// as successes so they never trip the circuit.
func IgnoreClientErrors(err error) bool {
	if err == nil {
		return true
	}
	if e, ok := apierr.As(err); ok {
		return e.Code.ClientError()
	}
	return false
}
