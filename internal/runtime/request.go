package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/auth"
	"github.com/vyrodovalexey/basefn/internal/datastore"
	"github.com/vyrodovalexey/basefn/internal/reqctx"
)

// Request is what a function handler receives.
type Request struct {
	// HTTP is the inbound request. Its body is limited to the function's
	// maximum body size.
	HTTP *http.Request

	// Context is the request's correlation data.
	Context reqctx.RequestContext

	store    *datastore.Scoped
	body     []byte
	bodyRead bool
	bodyErr  error
}

// Caller returns the resolved caller identity.
func (r *Request) Caller() auth.Identity {
	return r.Context.Caller
}

// Query returns the first value of a query parameter.
func (r *Request) Query(name string) string {
	return r.HTTP.URL.Query().Get(name)
}

// PathParam returns a router path parameter.
func (r *Request) PathParam(name string) string {
	return reqctx.PathParam(r.HTTP.Context(), name)
}

// Body reads and caches the request body.
func (r *Request) Body() ([]byte, error) {
	if r.bodyRead {
		return r.body, r.bodyErr
	}
	r.bodyRead = true

	if r.HTTP.Body == nil || r.HTTP.Body == http.NoBody {
		return nil, nil
	}
	b, err := io.ReadAll(r.HTTP.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			r.bodyErr = apierr.New(apierr.CodeInvalidInput, "Request body too large",
				map[string]any{"limitBytes": tooLarge.Limit})
		} else {
			r.bodyErr = apierr.Wrap(fmt.Errorf("read request body: %w", err),
				apierr.CodeInvalidInput, "Could not read request body")
		}
		return nil, r.bodyErr
	}
	r.body = b
	return r.body, nil
}

// Bind decodes the JSON body into v. A missing or malformed body is an
// INVALID_INPUT error.
func (r *Request) Bind(v any) error {
	b, err := r.Body()
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return apierr.InvalidInput("Request body is required")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return apierr.Wrap(err, apierr.CodeInvalidInput, "Invalid JSON body")
	}
	return nil
}

// BodyMap decodes the JSON body as an object.
func (r *Request) BodyMap() (map[string]any, error) {
	var m map[string]any
	if err := r.Bind(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apierr.InvalidInput("Request body must be a JSON object")
	}
	return m, nil
}

// RequireUser returns the caller's user id, or UNAUTHORIZED when the
// caller is not an authenticated user.
func (r *Request) RequireUser() (string, error) {
	if !r.Context.Caller.IsUser() {
		return "", apierr.Unauthorized("Authentication required")
	}
	return r.Context.Caller.UserID(), nil
}

// RequireService returns FORBIDDEN unless the caller holds the service
// credential.
func (r *Request) RequireService() error {
	if !r.Context.Caller.IsService() {
		return apierr.Forbidden("Service role required")
	}
	return nil
}

// Store returns the datastore handle scoped to the caller.
func (r *Request) Store() (*datastore.Scoped, error) {
	if r.store == nil {
		return nil, apierr.Unavailable("Datastore is not configured")
	}
	return r.store, nil
}
