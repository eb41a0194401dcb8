package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/auth"
	"github.com/vyrodovalexey/basefn/internal/datastore"
	"github.com/vyrodovalexey/basefn/internal/observability"
	"github.com/vyrodovalexey/basefn/internal/ratelimit"
	"github.com/vyrodovalexey/basefn/internal/reqctx"
)

const codeOK = "OK"

type function struct {
	rt           *Runtime
	name         string
	handler      HandlerFunc
	rateLimited  bool
	limit        int
	window       time.Duration
	maxBodyBytes int64
}

// outcome is what an invocation wrote.
type outcome struct {
	status int
	code   string
}

// ServeHTTP implements http.Handler.
func (f *function) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		Preflight(w)
		return
	}

	rt := f.rt
	started := rt.now()
	rt.deps.Metrics.InvocationStarted(f.name)

	ctx, span := rt.deps.Tracer.StartSpan(r.Context(), "function "+f.name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("faas.name", f.name),
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		),
	)
	defer span.End()

	requestID := rt.newID()
	headers := CORSHeaders()
	headers.Set(HeaderRequestID, requestID)

	out := f.invoke(ctx, w, r.WithContext(ctx), requestID, headers)

	elapsed := rt.now().Sub(started)
	rt.deps.Metrics.InvocationFinished(f.name, r.Method, out.code, elapsed.Seconds())

	span.SetAttributes(
		attribute.String("faas.invocation_id", requestID),
		attribute.String("basefn.code", out.code),
		attribute.Int("http.response.status_code", out.status),
	)
	if out.status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, out.code)
	}

	f.logInfo(ctx, "function completed",
		observability.String("request_id", requestID),
		observability.String("function", f.name),
		observability.Int("status", out.status),
		observability.String("code", out.code),
		observability.Duration("duration", elapsed),
	)
}

func (f *function) invoke(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	requestID string,
	headers http.Header,
) (out outcome) {
	rt := f.rt

	caller, authErr := rt.deps.Resolver.Resolve(r)
	if authErr != nil {
		caller = auth.Anonymous()
	}

	rc := reqctx.New(r, caller, reqctx.Options{
		Function: f.name,
		Now:      rt.now,
		NewID:    func() string { return requestID },
	})
	ctx = reqctx.WithContext(ctx, rc)

	if authErr != nil {
		return f.fail(ctx, w, rc, authErr, headers)
	}

	defer func() {
		if p := recover(); p != nil {
			out = f.fail(ctx, w, rc, p, headers)
		}
	}()

	var scoped *datastore.Scoped
	if rt.deps.Datastore != nil {
		scoped = rt.deps.Datastore.ForCaller(caller)
	}

	f.logInfo(ctx, "function invoked", rc.Fields()...)

	if rejected, ok := f.applyRateLimit(ctx, w, rc, headers); !ok {
		return rejected
	}

	if f.maxBodyBytes > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, f.maxBodyBytes)
	}

	req := &Request{HTTP: r, Context: rc, store: scoped}
	data, err := f.handler(ctx, req)
	if err != nil {
		return f.fail(ctx, w, rc, err, headers)
	}
	return f.succeed(ctx, w, rc, data, headers)
}

// logInfo writes an invocation log line. A failing logger never affects
// the response.
func (f *function) logInfo(ctx context.Context, msg string, fields ...observability.Field) {
	defer func() {
		if p := recover(); p != nil {
			f.rt.deps.Metrics.LogFailed(f.name)
		}
	}()
	f.rt.logger.WithContext(ctx).Info(msg, fields...)
}

// applyRateLimit reports false after writing a rejection.
func (f *function) applyRateLimit(
	ctx context.Context,
	w http.ResponseWriter,
	rc reqctx.RequestContext,
	headers http.Header,
) (outcome, bool) {
	rt := f.rt
	if !f.rateLimited || rt.deps.Limiter == nil || rc.Caller.IsService() {
		return outcome{}, true
	}

	key := ratelimit.Key(f.name, rc.Caller, rc.ClientIP)
	d, err := rt.deps.Limiter.CheckWith(ctx, key, f.limit, f.window)
	if err != nil {
		return f.fail(ctx, w, rc, err, headers), false
	}

	setRateLimitHeaders(headers, d)
	if d.Degraded {
		rt.deps.Metrics.RateLimitDegraded(f.name)
	}
	if d.Allowed {
		return outcome{}, true
	}

	rt.deps.Metrics.RateLimited(f.name)
	e := apierr.New(apierr.CodeRateLimitExceeded,
		fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", d.RetryAfterSeconds()),
		map[string]any{
			"limit":      d.Limit,
			"retryAfter": d.RetryAfterSeconds(),
			"resetTime":  d.ResetTime.UTC().Format(time.RFC3339),
		},
	)
	return f.fail(ctx, w, rc, e, headers), false
}

func (f *function) succeed(
	ctx context.Context,
	w http.ResponseWriter,
	rc reqctx.RequestContext,
	data any,
	headers http.Header,
) outcome {
	payload, err := json.Marshal(apierr.Success(data))
	if err != nil {
		return f.fail(ctx, w, rc, fmt.Errorf("encode %s response: %w", f.name, err), headers)
	}
	apierr.WriteJSON(w, http.StatusOK, json.RawMessage(payload), headers)
	return outcome{status: http.StatusOK, code: codeOK}
}

func (f *function) fail(
	ctx context.Context,
	w http.ResponseWriter,
	rc reqctx.RequestContext,
	raw any,
	headers http.Header,
) outcome {
	e := f.rt.deps.Errors.Handle(ctx, raw, rc.Details())
	apierr.WriteHTTP(w, e, headers)
	return outcome{status: e.Status(), code: string(e.Code)}
}
