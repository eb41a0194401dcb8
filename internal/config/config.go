package config

import "time"

// Config is the complete process configuration.
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Logging    LoggingConfig             `yaml:"logging"`
	Tracing    TracingConfig             `yaml:"tracing"`
	Auth       AuthConfig                `yaml:"auth"`
	Datastore  DatastoreConfig           `yaml:"datastore"`
	RateLimit  RateLimitConfig           `yaml:"rateLimit"`
	Resilience ResilienceConfig          `yaml:"resilience"`
	Audit      AuditConfig               `yaml:"audit"`
	Secrets    SecretsConfig             `yaml:"secrets"`
	Functions  map[string]FunctionConfig `yaml:"functions,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// AuthConfig configures caller identity resolution.
type AuthConfig struct {
	// ServiceRoleKey is the privileged credential. Empty disables the
	// service identity.
	ServiceRoleKey string    `yaml:"serviceRoleKey"`
	JWT            JWTConfig `yaml:"jwt"`
}

// JWTConfig configures user token verification.
type JWTConfig struct {
	Secret      string   `yaml:"secret"`
	Algorithm   string   `yaml:"algorithm"`
	JWKSURL     string   `yaml:"jwksUrl"`
	JWKSRefresh Duration `yaml:"jwksRefresh"`
	Issuer      string   `yaml:"issuer"`
	Audience    string   `yaml:"audience"`
	ClockSkew   Duration `yaml:"clockSkew"`
	RoleClaim   string   `yaml:"roleClaim"`
}

// Enabled reports whether any key material is configured.
func (c JWTConfig) Enabled() bool {
	return c.Secret != "" || c.JWKSURL != ""
}

// DatastoreConfig configures the SQL datastore.
type DatastoreConfig struct {
	Driver          string   `yaml:"driver"`
	URL             string   `yaml:"url"`
	MaxOpenConns    int      `yaml:"maxOpenConns"`
	MaxIdleConns    int      `yaml:"maxIdleConns"`
	ConnMaxLifetime Duration `yaml:"connMaxLifetime"`
	SwitchRole      bool     `yaml:"switchRole"`
	AutoMigrate     bool     `yaml:"autoMigrate"`
}

// RateLimitConfig configures the shared rate limiter.
type RateLimitConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Limit         int         `yaml:"limit"`
	Window        Duration    `yaml:"window"`
	Backend       string      `yaml:"backend"`
	FailurePolicy string      `yaml:"failurePolicy"`
	Redis         RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis counter store.
type RedisConfig struct {
	Address           string   `yaml:"address"`
	Password          string   `yaml:"password"`
	DB                int      `yaml:"db"`
	Prefix            string   `yaml:"prefix"`
	PoolSize          int      `yaml:"poolSize"`
	DialTimeout       Duration `yaml:"dialTimeout"`
	ConnectionRetries int      `yaml:"connectionRetries"`
}

// ResilienceConfig configures retries and circuit breakers for calls to
// external dependencies.
type ResilienceConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RetryConfig configures retry with exponential backoff.
type RetryConfig struct {
	MaxRetries   int      `yaml:"maxRetries"`
	BaseDelay    Duration `yaml:"baseDelay"`
	MaxDelay     Duration `yaml:"maxDelay"`
	JitterFactor float64  `yaml:"jitterFactor"`
}

// CircuitBreakerConfig configures circuit breakers.
type CircuitBreakerConfig struct {
	FailureThreshold int      `yaml:"failureThreshold"`
	Timeout          Duration `yaml:"timeout"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Output        string   `yaml:"output"`
	Datastore     bool     `yaml:"datastore"`
	RatePerSecond float64  `yaml:"ratePerSecond"`
	Burst         int      `yaml:"burst"`
	RedactFields  []string `yaml:"redactFields,omitempty"`
}

// SecretsConfig configures secret resolution.
type SecretsConfig struct {
	Vault VaultConfig `yaml:"vault"`
}

// VaultConfig configures reading credentials from a Vault KV v2 engine.
type VaultConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Address             string   `yaml:"address"`
	Token               string   `yaml:"token"`
	Namespace           string   `yaml:"namespace"`
	Mount               string   `yaml:"mount"`
	Path                string   `yaml:"path"`
	ServiceRoleKeyField string   `yaml:"serviceRoleKeyField"`
	JWTSecretField      string   `yaml:"jwtSecretField"`
	Timeout             Duration `yaml:"timeout"`
}

// FunctionConfig overrides settings for one function.
type FunctionConfig struct {
	Disabled     bool                     `yaml:"disabled"`
	MaxBodyBytes int64                    `yaml:"maxBodyBytes"`
	RateLimit    *FunctionRateLimitConfig `yaml:"rateLimit,omitempty"`
}

// FunctionRateLimitConfig overrides the rate limit for one function.
type FunctionRateLimitConfig struct {
	Disabled bool     `yaml:"disabled"`
	Limit    int      `yaml:"limit"`
	Window   Duration `yaml:"window"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			MaxBodyBytes:    1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			ServiceName:  "basefn",
			SamplingRate: 1.0,
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				Algorithm:   "HS256",
				JWKSRefresh: Duration(15 * time.Minute),
				ClockSkew:   Duration(30 * time.Second),
				RoleClaim:   "role",
			},
		},
		Datastore: DatastoreConfig{
			Driver:      "sqlite",
			URL:         "data/basefn.db",
			AutoMigrate: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Limit:         100,
			Window:        Duration(time.Minute),
			Backend:       "memory",
			FailurePolicy: "open",
			Redis: RedisConfig{
				Address:           "localhost:6379",
				Prefix:            "ratelimit:",
				PoolSize:          10,
				DialTimeout:       Duration(5 * time.Second),
				ConnectionRetries: 3,
			},
		},
		Resilience: ResilienceConfig{
			Retry: RetryConfig{
				MaxRetries:   3,
				BaseDelay:    Duration(100 * time.Millisecond),
				MaxDelay:     Duration(30 * time.Second),
				JitterFactor: 0.1,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				Timeout:          Duration(60 * time.Second),
			},
		},
		Audit: AuditConfig{
			Enabled:       true,
			Output:        "stdout",
			Datastore:     true,
			RatePerSecond: 50,
			Burst:         100,
		},
		Secrets: SecretsConfig{
			Vault: VaultConfig{
				Mount:               "secret",
				ServiceRoleKeyField: "service_role_key",
				JWTSecretField:      "jwt_secret",
				Timeout:             Duration(10 * time.Second),
			},
		},
	}
}

// Function returns the overrides for name, or the zero value.
func (c *Config) Function(name string) FunctionConfig {
	return c.Functions[name]
}
