package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// AuditRow is one persisted audit record.
type AuditRow struct {
	EventID    string         `json:"eventId"`
	OccurredAt time.Time      `json:"occurredAt"`
	RequestID  string         `json:"requestId"`
	Function   string         `json:"function"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Caller     string         `json:"caller"`
	Details    map[string]any `json:"details,omitempty"`
}

// Digest returns the hex SHA-256 of the row's canonical JSON form.
func (r AuditRow) Digest() (string, []byte, error) {
	r.OccurredAt = r.OccurredAt.UTC()
	raw, err := json.Marshal(r)
	if err != nil {
		return "", nil, fmt.Errorf("encode audit row: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", nil, fmt.Errorf("canonicalize audit row: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), canonical, nil
}

const insertAuditQuery = `INSERT INTO audit_logs
	(digest, event_id, occurred_at, request_id, function_name, code, message, caller, details)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (digest) DO NOTHING`

// InsertAudit persists row. Writing the same row twice stores it once;
// the returned flag reports whether a new row was written.
func (db *DB) InsertAudit(ctx context.Context, row AuditRow) (bool, error) {
	digest, _, err := row.Digest()
	if err != nil {
		return false, err
	}

	details := []byte("{}")
	if len(row.Details) > 0 {
		if details, err = json.Marshal(row.Details); err != nil {
			return false, fmt.Errorf("encode audit details: %w", err)
		}
	}

	res, err := db.sql.ExecContext(ctx, db.rebind(insertAuditQuery),
		digest, row.EventID, row.OccurredAt.UnixMilli(), row.RequestID,
		row.Function, row.Code, row.Message, row.Caller, string(details),
	)
	if err != nil {
		return false, fmt.Errorf("insert audit row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert audit row: %w", err)
	}
	return n > 0, nil
}

// CountAudit returns the number of audit rows stored for requestID.
func (db *DB) CountAudit(ctx context.Context, requestID string) (int, error) {
	var n int
	err := db.sql.QueryRowContext(ctx,
		db.rebind(`SELECT COUNT(*) FROM audit_logs WHERE request_id = ?`), requestID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit rows: %w", err)
	}
	return n, nil
}
