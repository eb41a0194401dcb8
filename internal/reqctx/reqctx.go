// Package reqctx builds the per-request correlation context shared by
// every step of a function invocation.
package reqctx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/basefn/internal/auth"
	"github.com/vyrodovalexey/basefn/internal/observability"
)

// Path segments and parameter names recognized as correlators.
const (
	SessionSegment = "session"
	JobSegment     = "job"

	ParamSessionID = "sessionId"
	ParamJobID     = "jobId"
)

var (
	sessionQueryKeys = []string{"sessionId", "session_id"}
	jobQueryKeys     = []string{"jobId", "job_id"}
)

// RequestContext is the immutable per-request correlation data.
type RequestContext struct {
	RequestID string
	Function  string
	Caller    auth.Identity
	SessionID string
	JobID     string
	ClientIP  string
	UserAgent string
	Method    string
	Path      string
	StartedAt time.Time
}

// Options tune context construction.
type Options struct {
	Function string
	Now      func() time.Time
	NewID    func() string
}

// New builds the RequestContext for r. It never fails; correlators that
// are absent are left empty.
func New(r *http.Request, caller auth.Identity, opts Options) RequestContext {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = NewRequestID
	}

	return RequestContext{
		RequestID: newID(),
		Function:  opts.Function,
		Caller:    caller,
		SessionID: extractID(r, sessionQueryKeys, ParamSessionID, SessionSegment),
		JobID:     extractID(r, jobQueryKeys, ParamJobID, JobSegment),
		ClientIP:  auth.ClientIP(r),
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
		StartedAt: now(),
	}
}

// NewRequestID returns a time-ordered UUIDv7, falling back to a random UUIDv4.
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// extractID looks for a correlator in the query string, then in router
// path parameters, then in the "/<segment>/<id>" path convention.
func extractID(r *http.Request, queryKeys []string, param, segment string) string {
	q := r.URL.Query()
	for _, k := range queryKeys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}

	if v := PathParam(r.Context(), param); v != "" {
		return v
	}

	return segmentValue(r.URL.Path, segment)
}

func segmentValue(path, segment string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == segment && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}

// Fields returns log fields for correlation. Credentials are never included.
func (rc RequestContext) Fields() []observability.Field {
	fields := []observability.Field{
		observability.String("request_id", rc.RequestID),
		observability.String("function", rc.Function),
		observability.String("method", rc.Method),
		observability.String("path", rc.Path),
		observability.String("caller", rc.Caller.Kind().String()),
		observability.String("client_ip", rc.ClientIP),
	}
	if rc.Caller.IsUser() {
		fields = append(fields, observability.String("user_id", rc.Caller.UserID()))
	}
	if rc.SessionID != "" {
		fields = append(fields, observability.String("session_id", rc.SessionID))
	}
	if rc.JobID != "" {
		fields = append(fields, observability.String("job_id", rc.JobID))
	}
	if rc.UserAgent != "" {
		fields = append(fields, observability.String("user_agent", rc.UserAgent))
	}
	return fields
}

// Details returns the correlation data attached to handled errors.
func (rc RequestContext) Details() map[string]any {
	d := map[string]any{
		"requestId": rc.RequestID,
		"function":  rc.Function,
		"caller":    rc.Caller.String(),
		"clientIp":  rc.ClientIP,
	}
	if rc.SessionID != "" {
		d["sessionId"] = rc.SessionID
	}
	if rc.JobID != "" {
		d["jobId"] = rc.JobID
	}
	return d
}

// Elapsed returns the time since the request started.
func (rc RequestContext) Elapsed(now time.Time) time.Duration {
	return now.Sub(rc.StartedAt)
}

type contextKey int

const (
	requestContextKey contextKey = iota
	pathParamsKey
)

// WithContext stores rc on ctx.
func WithContext(ctx context.Context, rc RequestContext) context.Context {
	ctx = observability.ContextWithRequestID(ctx, rc.RequestID)
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext returns the RequestContext stored on ctx.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(RequestContext)
	return rc, ok
}

// WithPathParams stores router path parameters on ctx.
func WithPathParams(ctx context.Context, params map[string]string) context.Context {
	return context.WithValue(ctx, pathParamsKey, params)
}

// PathParam returns a router path parameter stored with WithPathParams.
func PathParam(ctx context.Context, name string) string {
	params, _ := ctx.Value(pathParamsKey).(map[string]string)
	return params[name]
}
