package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// CalculateBackoff returns the delay after the given failed attempt
// (0-based): initial * 2^retry plus up to jitter*delay at random, capped at max.
func CalculateBackoff(retry int, initial, maxBackoff time.Duration, jitter float64) time.Duration {
	if retry < 0 {
		retry = 0
	}

	backoff := float64(initial) * math.Pow(2, float64(retry))
	if maxBackoff > 0 && backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	if jitter > 0 {
		//nolint:gosec // weak random is acceptable for jitter
		backoff += backoff * jitter * rand.Float64()
		if maxBackoff > 0 && backoff > float64(maxBackoff) {
			backoff = float64(maxBackoff)
		}
	}

	return time.Duration(backoff)
}
