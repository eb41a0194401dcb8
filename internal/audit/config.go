package audit

import (
	"errors"
	"fmt"
)

// Output destinations.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputNone   = "none"
)

// Config represents the audit configuration.
type Config struct {
	// Enabled turns recording on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output is stdout, stderr, none or a file path.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// Datastore also persists events to the datastore when one is available.
	Datastore bool `yaml:"datastore,omitempty" json:"datastore,omitempty"`

	// RatePerSecond is the sustained number of events written per second.
	RatePerSecond float64 `yaml:"ratePerSecond,omitempty" json:"ratePerSecond,omitempty"`

	// Burst is the number of events that may be written at once.
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`

	// RedactFields lists detail keys whose values are masked. Matching is
	// case-insensitive and by substring.
	RedactFields []string `yaml:"redactFields,omitempty" json:"redactFields,omitempty"`
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Output:        OutputStdout,
		Datastore:     true,
		RatePerSecond: 50,
		Burst:         100,
		RedactFields:  DefaultRedactFields(),
	}
}

// DefaultRedactFields returns the keys masked when none are configured.
func DefaultRedactFields() []string {
	return []string{"authorization", "token", "password", "secret", "apikey", "cookie"}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("ratePerSecond must be non-negative, got %v", c.RatePerSecond))
	}
	if c.Burst < 0 {
		errs = append(errs, fmt.Errorf("burst must be non-negative, got %d", c.Burst))
	}
	return errors.Join(errs...)
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.RatePerSecond == 0 {
		c.RatePerSecond = d.RatePerSecond
	}
	if c.Burst == 0 {
		c.Burst = d.Burst
	}
	if c.RedactFields == nil {
		c.RedactFields = d.RedactFields
	}
	if c.Output == "" {
		c.Output = OutputStdout
	}
	return c
}
