package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuditRow() AuditRow {
	return AuditRow{
		EventID:    "evt-1",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RequestID:  "req-1",
		Function:   "notes",
		Code:       "INTERNAL_ERROR",
		Message:    "An internal error occurred",
		Caller:     "user:u1",
		Details:    map[string]any{"b": 2, "a": "x"},
	}
}

func TestAuditRow_Digest(t *testing.T) {
	t.Parallel()

	row := testAuditRow()
	d1, canonical, err := row.Digest()
	require.NoError(t, err)
	assert.Len(t, d1, 64)
	assert.Contains(t, string(canonical), `"details":{"a":"x","b":2}`)

	// Same instant in another zone digests identically.
	local := row
	local.OccurredAt = row.OccurredAt.In(time.FixedZone("X", 3600))
	d2, _, err := local.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	other := row
	other.Message = "different"
	d3, _, err := other.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestInsertAudit_Idempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	row := testAuditRow()

	inserted, err := db.InsertAudit(ctx, row)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = db.InsertAudit(ctx, row)
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := db.CountAudit(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	second := row
	second.EventID = "evt-2"
	inserted, err = db.InsertAudit(ctx, second)
	require.NoError(t, err)
	assert.True(t, inserted)

	n, err = db.CountAudit(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInsertAudit_NoDetails(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	row := testAuditRow()
	row.Details = nil

	inserted, err := db.InsertAudit(context.Background(), row)
	require.NoError(t, err)
	assert.True(t, inserted)
}
