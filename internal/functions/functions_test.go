package functions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/basefn/internal/auth"
	"github.com/vyrodovalexey/basefn/internal/circuitbreaker"
	"github.com/vyrodovalexey/basefn/internal/datastore"
	"github.com/vyrodovalexey/basefn/internal/retry"
	"github.com/vyrodovalexey/basefn/internal/runtime"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// headerResolver maps X-Test-User to a user identity and X-Test-Service to
// the service identity.
type headerResolver struct{}

func (headerResolver) Resolve(r *http.Request) (auth.Identity, error) {
	if r.Header.Get("X-Test-Service") != "" {
		return auth.Service(), nil
	}
	if id := r.Header.Get("X-Test-User"); id != "" {
		return auth.User(id), nil
	}
	return auth.Anonymous(), nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type harness struct {
	handlers map[string]http.Handler
	db       *datastore.DB
}

func newHarness(t *testing.T, deps Deps) *harness {
	t.Helper()

	db, err := datastore.Open(context.Background(), datastore.Config{Driver: datastore.DriverSQLite, URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	rt := runtime.New(runtime.Deps{Resolver: headerResolver{}, Datastore: db},
		runtime.WithClock(func() time.Time { return testNow }),
		runtime.WithRequestIDGenerator(func() string { return "req-fn" }),
	)

	h := &harness{handlers: make(map[string]http.Handler), db: db}
	for _, def := range Builtins(deps) {
		h.handlers[def.Name] = rt.Function(def.Name, def.Handler, runtime.WithoutRateLimit())
	}
	return h
}

func (h *harness) do(t *testing.T, name, method, path, user, body string) (int, envelope) {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		r.Header.Set("X-Test-User", user)
	}

	rec := httptest.NewRecorder()
	h.handlers[name].ServeHTTP(rec, r)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func noRetry() retry.Config {
	return retry.Config{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestBuiltins_Names(t *testing.T) {
	t.Parallel()

	var names []string
	for _, def := range Builtins(Deps{}) {
		names = append(names, def.Name)
		assert.NotNil(t, def.Handler)
	}
	assert.Equal(t, []string{NamePing, NameWhoAmI, NameSessionNotes}, names)
}

func TestPing_Anonymous(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Deps{})
	code, env := h.do(t, NamePing, http.MethodGet, "/functions/v1/ping", "", "")

	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, true, data["pong"])
	assert.Equal(t, "req-fn", data["requestId"])
	assert.Equal(t, "anonymous", data["caller"])
}

func TestWhoAmI(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Deps{})
	code, env := h.do(t, NameWhoAmI, http.MethodGet, "/functions/v1/whoami?sessionId=s-7", "alice", "")

	require.Equal(t, http.StatusOK, code)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, map[string]any{"kind": "user", "userId": "alice"}, data["caller"])
	assert.Equal(t, "whoami", data["function"])
	assert.Equal(t, "s-7", data["sessionId"])
	assert.Equal(t, datastore.RoleAuthenticated, data["role"])
}

func TestSessionNotes_RoundTrip(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Deps{Retry: noRetry()})

	code, env := h.do(t, NameSessionNotes, http.MethodPost, "/functions/v1/session-notes",
		"alice", `{"sessionId":"s-1","message":"  hello  ","email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, code, env.Error.Message)

	var saved Note
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	assert.Equal(t, "s-1", saved.SessionID)
	assert.Equal(t, "hello", saved.Message)
	assert.True(t, saved.UpdatedAt.Equal(testNow))

	code, env = h.do(t, NameSessionNotes, http.MethodGet, "/functions/v1/session-notes/session/s-1", "alice", "")
	require.Equal(t, http.StatusOK, code)

	var loaded Note
	require.NoError(t, json.Unmarshal(env.Data, &loaded))
	assert.Equal(t, "hello", loaded.Message)
	assert.Equal(t, "alice@example.com", loaded.Email)

	code, env = h.do(t, NameSessionNotes, http.MethodGet, "/functions/v1/session-notes?sessionId=s-1", "bob", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	code, env = h.do(t, NameSessionNotes, http.MethodDelete, "/functions/v1/session-notes?sessionId=s-1", "alice", "")
	require.Equal(t, http.StatusOK, code)
	var deleted map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &deleted))
	assert.Equal(t, true, deleted["deleted"])

	code, _ = h.do(t, NameSessionNotes, http.MethodGet, "/functions/v1/session-notes?sessionId=s-1", "alice", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSessionNotes_DefaultSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Deps{Retry: noRetry()})

	code, _ := h.do(t, NameSessionNotes, http.MethodPost, "/functions/v1/session-notes", "alice", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, code)

	code, env := h.do(t, NameSessionNotes, http.MethodGet, "/functions/v1/session-notes", "alice", "")
	require.Equal(t, http.StatusOK, code)

	var note Note
	require.NoError(t, json.Unmarshal(env.Data, &note))
	assert.Equal(t, defaultSessionID, note.SessionID)
}

func TestSessionNotes_Validation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Deps{Retry: noRetry(), MaxMessageLength: 5})

	tests := []struct {
		name    string
		user    string
		body    string
		status  int
		code    string
		message string
	}{
		{name: "anonymous", body: `{"message":"hi"}`, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "empty body", user: "u", status: http.StatusBadRequest, code: "INVALID_INPUT", message: "Request body is required"},
		{name: "not json", user: "u", body: `{`, status: http.StatusBadRequest, code: "INVALID_INPUT", message: "Invalid JSON body"},
		{name: "missing message", user: "u", body: `{"email":"a@b.co"}`, status: http.StatusBadRequest, code: "INVALID_INPUT", message: "Missing required fields: message"},
		{name: "blank message", user: "u", body: `{"message":"   "}`, status: http.StatusBadRequest, code: "INVALID_INPUT", message: "Missing required fields: message"},
		{name: "wrong type", user: "u", body: `{"message":42}`, status: http.StatusBadRequest, code: "INVALID_INPUT", message: "Request body does not match schema"},
		{name: "too long", user: "u", body: `{"message":"abcdefg"}`, status: http.StatusBadRequest, code: "INVALID_INPUT", message: "Message too long (max 5 characters)"},
		{name: "bad email", user: "u", body: `{"message":"hi","email":"nope"}`, status: http.StatusBadRequest, code: "INVALID_INPUT", message: "Invalid email format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, env := h.do(t, NameSessionNotes, http.MethodPost, "/functions/v1/session-notes", tt.user, tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, env.Error.Message)
			}
		})
	}
}

func TestSessionNotes_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Deps{Retry: noRetry()})
	code, env := h.do(t, NameSessionNotes, http.MethodPatch, "/functions/v1/session-notes", "u", "")

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Method not allowed", env.Error.Message)
}

func TestSessionNotes_BreakerOpens(t *testing.T) {
	t.Parallel()

	cfg := circuitbreaker.Config{
		FailureThreshold: 2,
		Timeout:          time.Hour,
		IsSuccessful:     circuitbreaker.IgnoreClientErrors,
	}
	breakers := circuitbreaker.NewRegistry(cfg, nil)
	h := newHarness(t, Deps{Retry: noRetry(), Breakers: breakers})

	// A not-found read is a client error and must not trip the breaker.
	for i := 0; i < 3; i++ {
		code, _ := h.do(t, NameSessionNotes, http.MethodGet, "/functions/v1/session-notes", "u", "")
		require.Equal(t, http.StatusNotFound, code)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breakers.Get("datastore").State())

	require.NoError(t, h.db.Close())

	for i := 0; i < 2; i++ {
		code, env := h.do(t, NameSessionNotes, http.MethodGet, "/functions/v1/session-notes", "u", "")
		require.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "An internal error occurred", env.Error.Message)
	}

	code, env := h.do(t, NameSessionNotes, http.MethodGet, "/functions/v1/session-notes", "u", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
	assert.Equal(t, circuitbreaker.StateOpen, breakers.Get("datastore").State())
}
