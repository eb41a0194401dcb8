package datastore

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rate_limits (
		identifier   TEXT PRIMARY KEY,
		window_start BIGINT NOT NULL,
		hits         BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		digest        TEXT PRIMARY KEY,
		event_id      TEXT NOT NULL,
		occurred_at   BIGINT NOT NULL,
		request_id    TEXT NOT NULL,
		function_name TEXT NOT NULL,
		code          TEXT NOT NULL,
		message       TEXT NOT NULL,
		caller        TEXT NOT NULL,
		details       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_request_id_idx ON audit_logs (request_id)`,
	`CREATE TABLE IF NOT EXISTS kv_entries (
		owner      TEXT NOT NULL,
		namespace  TEXT NOT NULL,
		entry_key  TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (owner, namespace, entry_key)
	)`,
}

// Migrate creates the datastore tables. It is safe to run repeatedly.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	db.logger.Debug("datastore migrated")
	return nil
}
