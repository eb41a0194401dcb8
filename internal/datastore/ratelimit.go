package datastore

import (
	"context"
	"fmt"
	"time"
)

// The SET expressions read the pre-update row, so both columns see the
// same stored window start.
const hitRateLimitQuery = `INSERT INTO rate_limits (identifier, window_start, hits)
VALUES (?, ?, 1)
ON CONFLICT (identifier) DO UPDATE SET
	window_start = CASE WHEN excluded.window_start - rate_limits.window_start >= ?
		THEN excluded.window_start ELSE rate_limits.window_start END,
	hits = CASE WHEN excluded.window_start - rate_limits.window_start >= ?
		THEN 1 ELSE rate_limits.hits + 1 END
RETURNING window_start, hits`

// HitRateLimit counts one hit for identifier in a single conditional
// upsert and returns the resulting window start and count.
func (db *DB) HitRateLimit(
	ctx context.Context,
	identifier string,
	now time.Time,
	window time.Duration,
) (time.Time, int64, error) {
	var (
		startMs int64
		count   int64
	)
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()

	row := db.sql.QueryRowContext(ctx, db.rebind(hitRateLimitQuery), identifier, nowMs, windowMs, windowMs)
	if err := row.Scan(&startMs, &count); err != nil {
		return time.Time{}, 0, fmt.Errorf("rate limit upsert: %w", err)
	}
	return time.UnixMilli(startMs), count, nil
}
