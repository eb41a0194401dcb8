package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	jwtlib "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/basefn/internal/auth"
	"github.com/vyrodovalexey/basefn/internal/observability"
)

// Defaults.
const (
	DefaultAlgorithm     = "HS256"
	DefaultRoleClaim     = "role"
	DefaultJWKSRefresh   = 15 * time.Minute
	DefaultClockSkew     = 30 * time.Second
	defaultAuthenticated = "authenticated"
)

// ErrNoKeyMaterial is returned when neither a secret nor a JWKS URL is configured.
var ErrNoKeyMaterial = errors.New("jwt: secret or JWKS URL required")

// Config configures token verification.
type Config struct {
	// Secret is the shared HMAC secret. Ignored when JWKSURL is set.
	Secret string

	// Algorithm is the HMAC algorithm used with Secret.
	Algorithm string

	// JWKSURL is the location of the signing key set.
	JWKSURL string

	// JWKSRefresh is the minimum interval between key set refreshes.
	JWKSRefresh time.Duration

	Issuer    string
	Audience  string
	ClockSkew time.Duration

	// RoleClaim names the claim copied into auth.Claims.Role.
	RoleClaim string
}

// Verifier verifies bearer tokens with lestrrat-go/jwx.
type Verifier struct {
	parseOpts []jwtlib.ParseOption
	roleClaim string
	logger    observability.Logger
}

// Option configures a Verifier.
type Option func(*options)

type options struct {
	logger observability.Logger
	clock  func() time.Time
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the time source for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// NewVerifier creates a verifier. When cfg.JWKSURL is set the key set is
// fetched once and refreshed in the background until ctx is done.
func NewVerifier(ctx context.Context, cfg Config, opts ...Option) (*Verifier, error) {
	o := &options{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(o)
	}

	skew := cfg.ClockSkew
	if skew == 0 {
		skew = DefaultClockSkew
	}

	parseOpts := []jwtlib.ParseOption{
		jwtlib.WithValidate(true),
		jwtlib.WithAcceptableSkew(skew),
	}
	if cfg.Issuer != "" {
		parseOpts = append(parseOpts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parseOpts = append(parseOpts, jwtlib.WithAudience(cfg.Audience))
	}
	if o.clock != nil {
		parseOpts = append(parseOpts, jwtlib.WithClock(jwtlib.ClockFunc(o.clock)))
	}

	switch {
	case cfg.JWKSURL != "":
		set, err := newCachedSet(ctx, cfg)
		if err != nil {
			return nil, err
		}
		parseOpts = append(parseOpts, jwtlib.WithKeySet(set, jws.WithInferAlgorithmFromKey(true)))
	case cfg.Secret != "":
		alg := cfg.Algorithm
		if alg == "" {
			alg = DefaultAlgorithm
		}
		parseOpts = append(parseOpts, jwtlib.WithKey(jwa.SignatureAlgorithm(alg), []byte(cfg.Secret)))
	default:
		return nil, ErrNoKeyMaterial
	}

	roleClaim := cfg.RoleClaim
	if roleClaim == "" {
		roleClaim = DefaultRoleClaim
	}

	return &Verifier{
		parseOpts: parseOpts,
		roleClaim: roleClaim,
		logger:    o.logger,
	}, nil
}

func newCachedSet(ctx context.Context, cfg Config) (jwk.Set, error) {
	refresh := cfg.JWKSRefresh
	if refresh <= 0 {
		refresh = DefaultJWKSRefresh
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(refresh)); err != nil {
		return nil, fmt.Errorf("register JWKS %s: %w", cfg.JWKSURL, err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		return nil, fmt.Errorf("fetch JWKS %s: %w", cfg.JWKSURL, err)
	}
	return jwk.NewCachedSet(cache, cfg.JWKSURL), nil
}

// Verify parses and validates token and returns its claims.
func (v *Verifier) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	tok, err := jwtlib.ParseString(token, v.parseOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrInvalidToken, err)
	}
	if tok.Subject() == "" {
		return nil, fmt.Errorf("%w: missing subject", auth.ErrInvalidToken)
	}

	raw, err := tok.AsMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrInvalidToken, err)
	}

	role, _ := raw[v.roleClaim].(string)
	if role == "" {
		role = defaultAuthenticated
	}

	return &auth.Claims{
		Subject: tok.Subject(),
		Role:    role,
		Raw:     raw,
	}, nil
}
