package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/observability"
)

// Header names read by the resolver.
const (
	HeaderAuthorization = "Authorization"
	HeaderForwardedFor  = "X-Forwarded-For"
	HeaderRealIP        = "X-Real-IP"

	bearerScheme = "bearer"
)

// ErrInvalidToken is returned by verifiers for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the verified claims of a user token.
type Claims struct {
	Subject string
	Role    string
	Raw     map[string]any
}

// TokenVerifier verifies end-user bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Resolver classifies requests into identities.
type Resolver struct {
	serviceKey []byte
	verifier   TokenVerifier
	logger     observability.Logger
	metrics    *Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics records resolutions in m.
func WithMetrics(m *Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a resolver. An empty serviceKey disables the Service
// identity; a nil verifier rejects every non-service token.
func NewResolver(serviceKey string, verifier TokenVerifier, opts ...Option) *Resolver {
	r := &Resolver{
		verifier: verifier,
		logger:   observability.NopLogger(),
	}
	if serviceKey != "" {
		r.serviceKey = []byte(serviceKey)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve classifies the caller of req. It returns either an identity or
// an UNAUTHORIZED error, never both.
func (r *Resolver) Resolve(req *http.Request) (Identity, error) {
	start := time.Now()

	id, reason, err := r.resolve(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		r.metrics.failed(reason, elapsed)
		return Identity{}, err
	}
	r.metrics.resolved(id.Kind(), elapsed)
	return id, nil
}

func (r *Resolver) resolve(req *http.Request) (Identity, string, error) {
	header := req.Header.Get(HeaderAuthorization)
	if header == "" {
		return Anonymous(), "", nil
	}

	token, ok := parseBearer(header)
	if !ok {
		return Identity{}, reasonMalformed, apierr.Unauthorized("Malformed authorization header")
	}

	if r.serviceKey != nil && subtle.ConstantTimeCompare([]byte(token), r.serviceKey) == 1 {
		return Service(), "", nil
	}

	if r.verifier == nil {
		return Identity{}, reasonNoVerifier, apierr.Unauthorized("Invalid or expired token")
	}

	claims, err := r.verifier.Verify(req.Context(), token)
	if err != nil || claims == nil || claims.Subject == "" {
		r.logRejected(err)
		return Identity{}, reasonInvalid, apierr.Wrap(err, apierr.CodeUnauthorized, "Invalid or expired token")
	}

	return User(claims.Subject), "", nil
}

func (r *Resolver) logRejected(err error) {
	defer func() {
		_ = recover()
	}()
	r.logger.Debug("token rejected", observability.Error(err))
}

// Token returns the bearer credential of req, or "" when there is none.
func Token(req *http.Request) string {
	token, _ := parseBearer(req.Header.Get(HeaderAuthorization))
	return token
}

func parseBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
