package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/datastore"
	"github.com/vyrodovalexey/basefn/internal/reqctx"
)

const redactedValue = "[REDACTED]"

// Event is one audit record.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"requestId,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
	Function  string         `json:"function,omitempty"`
	Caller    string         `json:"caller,omitempty"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Cause     string         `json:"cause,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewEvent builds an event from a handled error entry and the request
// context carried by ctx.
func NewEvent(ctx context.Context, entry apierr.AuditEntry) *Event {
	ev := &Event{
		ID:        uuid.NewString(),
		Timestamp: entry.Time,
		Code:      string(entry.Code),
		Message:   entry.Message,
		Cause:     entry.Cause,
		Details:   entry.Details,
	}
	if rc, ok := reqctx.FromContext(ctx); ok {
		ev.RequestID = rc.RequestID
		ev.Function = rc.Function
		ev.Caller = rc.Caller.String()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	return ev
}

// Row converts the event into its datastore form.
func (e *Event) Row() datastore.AuditRow {
	return datastore.AuditRow{
		EventID:    e.ID,
		OccurredAt: e.Timestamp,
		RequestID:  e.RequestID,
		Function:   e.Function,
		Code:       e.Code,
		Message:    e.Message,
		Caller:     e.Caller,
		Details:    e.Details,
	}
}

// redact returns a copy of details with sensitive values masked. Nested
// maps are copied and masked too.
func redact(details map[string]any, fields []string) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if shouldRedact(k, fields) {
			out[k] = redactedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = redact(nested, fields)
			continue
		}
		out[k] = v
	}
	return out
}

func shouldRedact(key string, fields []string) bool {
	lower := strings.ToLower(key)
	for _, f := range fields {
		if f != "" && strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}
