package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Environment variables that override file settings.
const (
	EnvDatastoreURL    = "BASEFN_DATASTORE_URL"
	EnvDatastoreDriver = "BASEFN_DATASTORE_DRIVER"
	EnvServiceRoleKey  = "BASEFN_SERVICE_ROLE_KEY"
	EnvJWTSecret       = "BASEFN_JWT_SECRET"
	EnvRedisAddr       = "BASEFN_REDIS_ADDR"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Loader reads configuration files.
type Loader struct {
	lookup LookupFunc
}

// NewLoader creates a loader resolving variables with lookup. A nil
// lookup uses the process environment.
func NewLoader(lookup LookupFunc) *Loader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Loader{lookup: lookup}
}

// Load reads the configuration at path using the process environment.
// An empty path yields the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	return NewLoader(nil).Load(path)
}

// Load reads the configuration file at path.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		l.applyEnvOverrides(cfg)
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	data, err := os.ReadFile(absPath) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return l.parse(data)
}

// LoadFromReader reads configuration from r.
func (l *Loader) LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return l.parse(data)
}

func (l *Loader) parse(data []byte) (*Config, error) {
	content := l.substituteEnvVars(string(data))

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.applyEnvOverrides(cfg)
	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns. A
// doubled $$ is kept as a literal dollar sign.
func (l *Loader) substituteEnvVars(content string) string {
	const escaped = "\x00ESCAPED_DOLLAR\x00"
	content = strings.ReplaceAll(content, "$$", escaped)

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		if value, ok := l.lookup(sub[1]); ok {
			return value
		}
		return sub[2]
	})

	return strings.ReplaceAll(result, escaped, "$")
}

func (l *Loader) applyEnvOverrides(cfg *Config) {
	set := func(key string, dst *string) {
		if v, ok := l.lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvDatastoreURL, &cfg.Datastore.URL)
	set(EnvDatastoreDriver, &cfg.Datastore.Driver)
	set(EnvServiceRoleKey, &cfg.Auth.ServiceRoleKey)
	set(EnvJWTSecret, &cfg.Auth.JWT.Secret)
	set(EnvRedisAddr, &cfg.RateLimit.Redis.Address)
}
