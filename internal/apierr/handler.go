package apierr

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/basefn/internal/observability"
)

// AuditEntry is the record written to the audit trail for a handled error.
type AuditEntry struct {
	Time    time.Time
	Code    Code
	Message string
	Cause   string
	Details map[string]any
}

// Auditor persists handled errors. Implementations may fail; the handler
// ignores those failures.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Handler converts raised values into envelopes and records them.
type Handler struct {
	logger   observability.Logger
	auditor  Auditor
	now      func() time.Time
	failures *prometheus.CounterVec
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithAuditor sets the audit sink.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		h.auditor = a
	}
}

// WithRegisterer registers the handler's metrics with r.
func WithRegisterer(r prometheus.Registerer) HandlerOption {
	return func(h *Handler) {
		if r != nil {
			r.MustRegister(h.failures)
		}
	}
}

// WithClock sets the time source used for audit entries.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a Handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		logger: observability.NopLogger(),
		now:    time.Now,
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.DefaultNamespace,
			Name:      "error_side_effect_failures_total",
			Help:      "Failed logging or audit writes while handling an error",
		}, []string{"sink"}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle normalizes raw into an envelope, merges details into it, logs it
// and writes an audit entry. It never panics and never returns nil.
func (h *Handler) Handle(ctx context.Context, raw any, details map[string]any) *Error {
	e := normalize(raw)
	e = e.WithDetails(details)

	h.log(ctx, e)
	h.audit(ctx, e)

	return e
}

func normalize(raw any) *Error {
	switch v := raw.(type) {
	case nil:
		return New(CodeInternal, SafeInternalMessage, map[string]any{"cause": "nil error"})
	case error:
		if e, ok := As(v); ok {
			return e
		}
		return Internal(v)
	default:
		cause := fmt.Errorf("panic: %v", v)
		return Wrap(cause, CodeInternal, SafeInternalMessage)
	}
}

func (h *Handler) log(ctx context.Context, e *Error) {
	defer func() {
		if r := recover(); r != nil {
			h.failures.WithLabelValues("log").Inc()
		}
	}()

	fields := []observability.Field{
		observability.String("code", string(e.Code)),
		observability.String("message", e.Message),
		observability.Any("details", e.Details),
	}
	if e.Cause != nil {
		fields = append(fields, observability.Error(e.Cause))
	}

	logger := h.logger.WithContext(ctx)
	if e.Code.ClientError() {
		logger.Warn("request failed", fields...)
		return
	}
	logger.Error("request failed", fields...)
}

func (h *Handler) audit(ctx context.Context, e *Error) {
	if h.auditor == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.failures.WithLabelValues("audit").Inc()
		}
	}()

	entry := AuditEntry{
		Time:    h.now().UTC(),
		Code:    e.Code,
		Message: e.Message,
		Details: maps.Clone(e.Details),
	}
	if e.Cause != nil {
		entry.Cause = e.Cause.Error()
	}

	if err := h.auditor.Record(ctx, entry); err != nil {
		h.failures.WithLabelValues("audit").Inc()
		if !errors.Is(err, context.Canceled) {
			h.logger.Debug("audit write dropped", observability.Error(err))
		}
	}
}
