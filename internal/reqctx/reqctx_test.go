package reqctx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/basefn/internal/auth"
	"github.com/vyrodovalexey/basefn/internal/observability"
)

func TestNew_Correlators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		target      string
		params      map[string]string
		wantSession string
		wantJob     string
	}{
		{
			name:   "no correlators",
			target: "/functions/v1/notes",
		},
		{
			name:        "query parameters",
			target:      "/functions/v1/notes?sessionId=s-q&job_id=j-q",
			wantSession: "s-q",
			wantJob:     "j-q",
		},
		{
			name:        "path segments",
			target:      "/functions/v1/notes/session/s-p/job/j-p",
			wantSession: "s-p",
			wantJob:     "j-p",
		},
		{
			name:        "router params",
			target:      "/functions/v1/notes/abc",
			params:      map[string]string{ParamSessionID: "s-r"},
			wantSession: "s-r",
		},
		{
			name:        "query wins over router and segment",
			target:      "/functions/v1/notes/session/s-p?sessionId=s-q",
			params:      map[string]string{ParamSessionID: "s-r"},
			wantSession: "s-q",
		},
		{
			name:        "router wins over segment",
			target:      "/functions/v1/notes/session/s-p",
			params:      map[string]string{ParamSessionID: "s-r"},
			wantSession: "s-r",
		},
		{
			name:   "trailing segment without id",
			target: "/functions/v1/notes/session/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.params != nil {
				r = r.WithContext(WithPathParams(r.Context(), tt.params))
			}

			rc := New(r, auth.Anonymous(), Options{Function: "notes"})

			assert.Equal(t, tt.wantSession, rc.SessionID)
			assert.Equal(t, tt.wantJob, rc.JobID)
		})
	}
}

func TestNew_Fields(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := httptest.NewRequest(http.MethodPost, "/functions/v1/notes", nil)
	r.Header.Set("User-Agent", "test-agent/1.0")
	r.Header.Set(auth.HeaderForwardedFor, "203.0.113.9")

	rc := New(r, auth.User("u1"), Options{
		Function: "notes",
		Now:      func() time.Time { return started },
		NewID:    func() string { return "req-1" },
	})

	assert.Equal(t, "req-1", rc.RequestID)
	assert.Equal(t, "notes", rc.Function)
	assert.Equal(t, auth.User("u1"), rc.Caller)
	assert.Equal(t, "203.0.113.9", rc.ClientIP)
	assert.Equal(t, "test-agent/1.0", rc.UserAgent)
	assert.Equal(t, http.MethodPost, rc.Method)
	assert.Equal(t, "/functions/v1/notes", rc.Path)
	assert.Equal(t, started, rc.StartedAt)
	assert.Equal(t, 5*time.Second, rc.Elapsed(started.Add(5*time.Second)))
}

func TestNewRequestID(t *testing.T) {
	t.Parallel()

	a, b := NewRequestID(), NewRequestID()
	assert.NotEqual(t, a, b)

	id, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestRequestContext_FieldsAndDetails(t *testing.T) {
	t.Parallel()

	rc := RequestContext{
		RequestID: "r1",
		Function:  "notes",
		Caller:    auth.User("u1"),
		SessionID: "s1",
		ClientIP:  "1.2.3.4",
	}

	keys := make(map[string]bool)
	for _, f := range rc.Fields() {
		keys[f.Key] = true
	}
	assert.True(t, keys["user_id"])
	assert.True(t, keys["session_id"])
	assert.False(t, keys["job_id"])

	d := rc.Details()
	assert.Equal(t, "r1", d["requestId"])
	assert.Equal(t, "user:u1", d["caller"])
	assert.Equal(t, "s1", d["sessionId"])
	assert.NotContains(t, d, "jobId")
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	rc := RequestContext{RequestID: "r1"}
	ctx := WithContext(context.Background(), rc)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, rc, got)
	assert.Equal(t, "r1", observability.RequestIDFromContext(ctx))

	assert.Empty(t, PathParam(context.Background(), "x"))
}
