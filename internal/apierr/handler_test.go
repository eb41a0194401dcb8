package apierr

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/basefn/internal/observability"
)

type recordingAuditor struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
	panic   bool
}

func (a *recordingAuditor) Record(_ context.Context, entry AuditEntry) error {
	if a.panic {
		panic("audit sink exploded")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return a.err
}

func TestHandler_Handle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         any
		wantCode    Code
		wantMessage string
	}{
		{
			name:        "envelope preserved",
			raw:         NotFound("Session not found"),
			wantCode:    CodeNotFound,
			wantMessage: "Session not found",
		},
		{
			name:        "wrapped envelope preserved",
			raw:         errors.Join(errors.New("ctx"), Forbidden("nope")),
			wantCode:    CodeForbidden,
			wantMessage: "nope",
		},
		{
			name:        "plain error",
			raw:         errors.New("pq: connection refused to 10.0.0.3"),
			wantCode:    CodeInternal,
			wantMessage: SafeInternalMessage,
		},
		{
			name:        "panic string",
			raw:         "index out of range",
			wantCode:    CodeInternal,
			wantMessage: SafeInternalMessage,
		},
		{
			name:        "panic struct",
			raw:         struct{ X int }{X: 1},
			wantCode:    CodeInternal,
			wantMessage: SafeInternalMessage,
		},
		{
			name:        "nil",
			raw:         nil,
			wantCode:    CodeInternal,
			wantMessage: SafeInternalMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			auditor := &recordingAuditor{}
			h := NewHandler(WithAuditor(auditor))

			e := h.Handle(context.Background(), tt.raw, map[string]any{"function": "notes"})

			require.NotNil(t, e)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantMessage, e.Message)
			assert.Equal(t, "notes", e.Details["function"])

			require.Len(t, auditor.entries, 1)
			assert.Equal(t, tt.wantCode, auditor.entries[0].Code)
			assert.Equal(t, "notes", auditor.entries[0].Details["function"])
		})
	}
}

func TestHandler_PlainErrorCauseIsKept(t *testing.T) {
	t.Parallel()

	auditor := &recordingAuditor{}
	h := NewHandler(WithAuditor(auditor))
	cause := errors.New("dial tcp: refused")

	e := h.Handle(context.Background(), cause, nil)

	assert.ErrorIs(t, e, cause)
	assert.NotContains(t, e.Message, "refused")
	require.Len(t, auditor.entries, 1)
	assert.Equal(t, "dial tcp: refused", auditor.entries[0].Cause)
}

func TestHandler_DoesNotMutateRaisedError(t *testing.T) {
	t.Parallel()

	raised := New(CodeInvalidInput, "bad", map[string]any{"field": "email"})
	e := NewHandler().Handle(context.Background(), raised, map[string]any{"requestId": "r1"})

	assert.Equal(t, "r1", e.Details["requestId"])
	assert.Equal(t, "email", e.Details["field"])
	assert.NotContains(t, raised.Details, "requestId")
}

func TestHandler_AuditFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	h := NewHandler(
		WithAuditor(&recordingAuditor{err: errors.New("db down")}),
		WithRegisterer(reg),
	)

	e := h.Handle(context.Background(), Unavailable("busy"), nil)
	assert.Equal(t, CodeServiceUnavailable, e.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.failures.WithLabelValues("audit")))
}

func TestHandler_AuditPanicIsSwallowed(t *testing.T) {
	t.Parallel()

	h := NewHandler(WithAuditor(&recordingAuditor{panic: true}))

	var e *Error
	assert.NotPanics(t, func() {
		e = h.Handle(context.Background(), errors.New("boom"), nil)
	})
	assert.Equal(t, CodeInternal, e.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.failures.WithLabelValues("audit")))
}

func TestHandler_LogLevelByCode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := observability.NewLogger(observability.LogConfig{Level: "debug", Writer: &buf})
	require.NoError(t, err)

	h := NewHandler(WithLogger(logger))

	h.Handle(context.Background(), InvalidInput("bad"), nil)
	assert.Contains(t, buf.String(), `"level":"warn"`)

	buf.Reset()
	h.Handle(context.Background(), errors.New("boom"), nil)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "boom")
}

func TestHandler_AuditTimestampFromClock(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	auditor := &recordingAuditor{}
	h := NewHandler(WithAuditor(auditor), WithClock(func() time.Time { return fixed }))

	h.Handle(context.Background(), NotFound("x"), nil)

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, fixed, auditor.entries[0].Time)
}

func TestHandler_LoggerPanicIsSwallowed(t *testing.T) {
	t.Parallel()

	auditor := &recordingAuditor{}
	h := NewHandler(WithLogger(brokenLogger{}), WithAuditor(auditor))

	var e *Error
	require.NotPanics(t, func() {
		e = h.Handle(context.Background(), NotFound("missing"), nil)
	})
	assert.Equal(t, CodeNotFound, e.Code)
	assert.Len(t, auditor.entries, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.failures.WithLabelValues("log")))
}
