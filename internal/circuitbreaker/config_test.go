package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/basefn/internal/apierr"
)

func TestConfig_Normalized(t *testing.T) {
	t.Parallel()

	cfg := Config{}.normalized()
	assert.Equal(t, DefaultFailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)

	cfg = Config{FailureThreshold: 2, Timeout: time.Second}.normalized()
	assert.Equal(t, 2, cfg.FailureThreshold)
	assert.Equal(t, time.Second, cfg.Timeout)
}

func TestIgnoreClientErrors(t *testing.T) {
	t.Parallel()

	assert.True(t, IgnoreClientErrors(nil))
	assert.True(t, IgnoreClientErrors(apierr.InvalidInput("x")))
	assert.True(t, IgnoreClientErrors(apierr.RateLimited("x")))
	assert.False(t, IgnoreClientErrors(apierr.Unavailable("x")))
	assert.False(t, IgnoreClientErrors(errors.New("x")))
}
