package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validLogFormats    = []string{"json", "console"}
	validDrivers       = []string{"postgres", "sqlite"}
	validBackends      = []string{"memory", "redis", "datastore"}
	validPolicies      = []string{"open", "closed"}
	validJWTAlgorithms = []string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA"}
)

type validator struct {
	errors ValidationErrors
}

func (v *validator) addError(path, format string, args ...any) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) oneOf(path, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.addError(path, "must be one of %s, got %q", strings.Join(allowed, ", "), value)
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	v := &validator{}

	v.validateServer(&c.Server)
	v.validateLogging(&c.Logging)
	v.validateTracing(&c.Tracing)
	v.validateAuth(&c.Auth)
	v.validateDatastore(&c.Datastore)
	v.validateRateLimit(&c.RateLimit)
	v.validateResilience(&c.Resilience)
	v.validateAudit(&c.Audit)
	v.validateSecrets(&c.Secrets)
	v.validateFunctions(c.Functions)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *validator) validateServer(s *ServerConfig) {
	if s.Address == "" {
		v.addError("server.address", "is required")
	}
	if s.MaxBodyBytes < 0 {
		v.addError("server.maxBodyBytes", "must be non-negative")
	}
	if s.ShutdownTimeout < 0 {
		v.addError("server.shutdownTimeout", "must be non-negative")
	}
}

func (v *validator) validateLogging(l *LoggingConfig) {
	v.oneOf("logging.level", l.Level, validLogLevels)
	v.oneOf("logging.format", l.Format, validLogFormats)
}

func (v *validator) validateTracing(t *TracingConfig) {
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "must be between 0 and 1, got %v", t.SamplingRate)
	}
	if t.Enabled && t.OTLPEndpoint == "" {
		v.addError("tracing.otlpEndpoint", "is required when tracing is enabled")
	}
}

func (v *validator) validateAuth(a *AuthConfig) {
	jwt := &a.JWT
	if jwt.Secret != "" {
		v.oneOf("auth.jwt.algorithm", jwt.Algorithm, validJWTAlgorithms)
		if strings.HasPrefix(jwt.Algorithm, "HS") && len(jwt.Secret) < 32 {
			v.addError("auth.jwt.secret", "must be at least 32 bytes for HMAC algorithms")
		}
	}
	if jwt.JWKSURL != "" && !strings.HasPrefix(jwt.JWKSURL, "https://") && !strings.HasPrefix(jwt.JWKSURL, "http://") {
		v.addError("auth.jwt.jwksUrl", "must be an http(s) URL")
	}
	if jwt.ClockSkew < 0 {
		v.addError("auth.jwt.clockSkew", "must be non-negative")
	}
	if a.ServiceRoleKey != "" && a.ServiceRoleKey == jwt.Secret {
		v.addError("auth.serviceRoleKey", "must differ from the JWT secret")
	}
}

func (v *validator) validateDatastore(d *DatastoreConfig) {
	v.oneOf("datastore.driver", d.Driver, validDrivers)
	if d.Driver == "postgres" && d.URL == "" {
		v.addError("datastore.url", "is required for the postgres driver")
	}
	if d.MaxOpenConns < 0 {
		v.addError("datastore.maxOpenConns", "must be non-negative")
	}
}

func (v *validator) validateRateLimit(r *RateLimitConfig) {
	if !r.Enabled {
		return
	}
	if r.Limit <= 0 {
		v.addError("rateLimit.limit", "must be positive, got %d", r.Limit)
	}
	if r.Window <= 0 {
		v.addError("rateLimit.window", "must be positive")
	}
	v.oneOf("rateLimit.backend", r.Backend, validBackends)
	v.oneOf("rateLimit.failurePolicy", r.FailurePolicy, validPolicies)
	if r.Backend == "redis" && r.Redis.Address == "" {
		v.addError("rateLimit.redis.address", "is required for the redis backend")
	}
}

func (v *validator) validateResilience(r *ResilienceConfig) {
	if r.Retry.MaxRetries < 0 {
		v.addError("resilience.retry.maxRetries", "must be non-negative")
	}
	if r.Retry.BaseDelay < 0 || r.Retry.MaxDelay < 0 {
		v.addError("resilience.retry", "delays must be non-negative")
	}
	if r.Retry.MaxDelay > 0 && r.Retry.BaseDelay > r.Retry.MaxDelay {
		v.addError("resilience.retry.baseDelay", "must not exceed maxDelay")
	}
	if r.Retry.JitterFactor < 0 || r.Retry.JitterFactor > 1 {
		v.addError("resilience.retry.jitterFactor", "must be between 0 and 1")
	}
	if r.CircuitBreaker.FailureThreshold <= 0 {
		v.addError("resilience.circuitBreaker.failureThreshold", "must be positive")
	}
	if r.CircuitBreaker.Timeout <= 0 {
		v.addError("resilience.circuitBreaker.timeout", "must be positive")
	}
}

func (v *validator) validateAudit(a *AuditConfig) {
	if a.RatePerSecond < 0 {
		v.addError("audit.ratePerSecond", "must be non-negative")
	}
	if a.Burst < 0 {
		v.addError("audit.burst", "must be non-negative")
	}
}

func (v *validator) validateSecrets(s *SecretsConfig) {
	vault := &s.Vault
	if !vault.Enabled {
		return
	}
	if vault.Address == "" {
		v.addError("secrets.vault.address", "is required when vault is enabled")
	}
	if vault.Path == "" {
		v.addError("secrets.vault.path", "is required when vault is enabled")
	}
	if vault.Mount == "" {
		v.addError("secrets.vault.mount", "is required when vault is enabled")
	}
}

func (v *validator) validateFunctions(fns map[string]FunctionConfig) {
	names := make([]string, 0, len(fns))
	for name := range fns {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		fn := fns[name]
		path := "functions." + name
		if fn.MaxBodyBytes < 0 {
			v.addError(path+".maxBodyBytes", "must be non-negative")
		}
		if rl := fn.RateLimit; rl != nil && !rl.Disabled {
			if rl.Limit <= 0 {
				v.addError(path+".rateLimit.limit", "must be positive, got %d", rl.Limit)
			}
			if rl.Window <= 0 {
				v.addError(path+".rateLimit.window", "must be positive")
			}
		}
	}
}
