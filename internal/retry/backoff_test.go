package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		retry int
		want  time.Duration
	}{
		{name: "first retry", retry: 0, want: 100 * time.Millisecond},
		{name: "second retry", retry: 1, want: 200 * time.Millisecond},
		{name: "third retry", retry: 2, want: 400 * time.Millisecond},
		{name: "capped", retry: 10, want: time.Second},
		{name: "negative", retry: -1, want: 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CalculateBackoff(tt.retry, 100*time.Millisecond, time.Second, 0))
		})
	}
}

func TestCalculateBackoff_Jitter(t *testing.T) {
	t.Parallel()

	for i := 0; i < 100; i++ {
		d := CalculateBackoff(1, 100*time.Millisecond, time.Second, 0.5)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}

	// Jitter never pushes past the cap.
	for i := 0; i < 100; i++ {
		assert.LessOrEqual(t, CalculateBackoff(5, 100*time.Millisecond, time.Second, 1), time.Second)
	}
}

func TestConfig_Normalized(t *testing.T) {
	t.Parallel()

	cfg := Config{MaxRetries: -2, JitterFactor: 7}.normalized()
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, DefaultBaseDelay, cfg.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, cfg.MaxDelay)
	assert.Equal(t, MaxJitterFactor, cfg.JitterFactor)

	cfg = Config{JitterFactor: -1}.normalized()
	assert.Zero(t, cfg.JitterFactor)
}
