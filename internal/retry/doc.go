// Package retry re-runs flaky downstream calls with exponential backoff.
//
// A retry predicate is mandatory: callers decide which failures are
// transient. IsTransient covers the common cases.
//
//	cfg := retry.Config{MaxRetries: 3, BaseDelay: 100 * time.Millisecond}
//	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
//	    return callExternalService(ctx)
//	}, retry.IsTransient)
//
// Delays grow as BaseDelay, 2*BaseDelay, 4*BaseDelay and so on, capped by
// MaxDelay. JitterFactor adds up to that fraction of each delay at random.
package retry
