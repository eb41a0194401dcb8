package functions

import (
	"context"

	"github.com/vyrodovalexey/basefn/internal/runtime"
)

// Ping answers any caller, including anonymous ones.
func Ping(_ context.Context, req *runtime.Request) (any, error) {
	return map[string]any{
		"pong":      true,
		"requestId": req.Context.RequestID,
		"caller":    req.Caller().String(),
	}, nil
}

// WhoAmI describes the caller and the correlators of the invocation.
func WhoAmI(_ context.Context, req *runtime.Request) (any, error) {
	rc := req.Context
	out := map[string]any{
		"caller":    rc.Caller,
		"requestId": rc.RequestID,
		"function":  rc.Function,
		"clientIp":  rc.ClientIP,
	}
	if rc.UserAgent != "" {
		out["userAgent"] = rc.UserAgent
	}
	if rc.SessionID != "" {
		out["sessionId"] = rc.SessionID
	}
	if rc.JobID != "" {
		out["jobId"] = rc.JobID
	}
	if store, err := req.Store(); err == nil {
		out["role"] = store.Role()
	}
	return out, nil
}
