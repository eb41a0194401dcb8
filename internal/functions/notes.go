package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/circuitbreaker"
	"github.com/vyrodovalexey/basefn/internal/datastore"
	"github.com/vyrodovalexey/basefn/internal/observability"
	"github.com/vyrodovalexey/basefn/internal/retry"
	"github.com/vyrodovalexey/basefn/internal/runtime"
)

const (
	notesNamespace   = "session-notes"
	defaultSessionID = "default"
)

var noteSchema = apierr.MustCompileSchema(`{
  "type": "object",
  "properties": {
    "sessionId": {"type": "string", "minLength": 1, "maxLength": 128},
    "message": {"type": "string"},
    "email": {"type": "string"}
  },
  "required": ["message"]
}`)

// Note is a stored session note.
type Note struct {
	SessionID string    `json:"sessionId"`
	Message   string    `json:"message"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type noteInput struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Email     string `json:"email"`
}

type sessionNotes struct {
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
	maxLen  int
	logger  observability.Logger
}

// Handle stores (POST), reads (GET) or removes (DELETE) the caller's note
// for a session.
func (n *sessionNotes) Handle(ctx context.Context, req *runtime.Request) (any, error) {
	if _, err := req.RequireUser(); err != nil {
		return nil, err
	}
	store, err := req.Store()
	if err != nil {
		return nil, err
	}

	switch req.HTTP.Method {
	case http.MethodPost, http.MethodPut:
		return n.save(ctx, req, store)
	case http.MethodGet:
		return n.load(ctx, req, store)
	case http.MethodDelete:
		return n.remove(ctx, req, store)
	default:
		return nil, apierr.InvalidInput("Method not allowed")
	}
}

func (n *sessionNotes) save(ctx context.Context, req *runtime.Request, store *datastore.Scoped) (any, error) {
	fields, err := req.BodyMap()
	if err != nil {
		return nil, err
	}
	if err := apierr.ValidateRequired(fields, "message"); err != nil {
		return nil, err
	}
	body, err := req.Body()
	if err != nil {
		return nil, err
	}
	if err := apierr.ValidateSchema(noteSchema, body); err != nil {
		return nil, err
	}

	var in noteInput
	if err := req.Bind(&in); err != nil {
		return nil, err
	}
	msg, err := apierr.ValidateMessage(in.Message, n.maxLen)
	if err != nil {
		return nil, err
	}
	if in.Email != "" {
		if err := apierr.ValidateEmail(in.Email); err != nil {
			return nil, err
		}
	}

	note := Note{
		SessionID: sessionID(req, in.SessionID),
		Message:   msg,
		Email:     in.Email,
		UpdatedAt: req.Context.StartedAt.UTC(),
	}
	raw, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("encode note: %w", err)
	}

	err = n.call(ctx, "put", func(ctx context.Context) error {
		return store.Put(ctx, notesNamespace, note.SessionID, string(raw))
	})
	if err != nil {
		return nil, err
	}

	n.logger.WithContext(ctx).Debug("session note stored",
		observability.String("session_id", note.SessionID),
	)
	return note, nil
}

func (n *sessionNotes) load(ctx context.Context, req *runtime.Request, store *datastore.Scoped) (any, error) {
	id := sessionID(req, "")

	var raw string
	err := n.call(ctx, "get", func(ctx context.Context) error {
		v, err := store.Get(ctx, notesNamespace, id)
		if errors.Is(err, datastore.ErrNotFound) {
			return apierr.NotFound("Note not found")
		}
		raw = v
		return err
	})
	if err != nil {
		return nil, err
	}

	var note Note
	if err := json.Unmarshal([]byte(raw), &note); err != nil {
		return nil, fmt.Errorf("decode note %s: %w", id, err)
	}
	return note, nil
}

func (n *sessionNotes) remove(ctx context.Context, req *runtime.Request, store *datastore.Scoped) (any, error) {
	id := sessionID(req, "")

	var deleted bool
	err := n.call(ctx, "delete", func(ctx context.Context) error {
		ok, err := store.Delete(ctx, notesNamespace, id)
		deleted = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"sessionId": id, "deleted": deleted}, nil
}

// call runs op through the breaker, retrying transient failures inside a
// single breaker sample.
func (n *sessionNotes) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, n.retry, fn, retry.IsTransient,
			retry.WithName(notesNamespace+"."+op),
			retry.WithLogger(n.logger),
		)
	})
}

// sessionID prefers the id from the body, then the one carried by the
// request path or query.
func sessionID(req *runtime.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if req.Context.SessionID != "" {
		return req.Context.SessionID
	}
	return defaultSessionID
}
