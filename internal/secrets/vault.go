package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/basefn/internal/observability"
	"github.com/vyrodovalexey/basefn/internal/retry"
)

// VaultConfig configures the Vault client.
type VaultConfig struct {
	Address   string
	Token     string
	Namespace string
	Mount     string
	Timeout   time.Duration
	Retry     retry.Config
}

// Reader reads a KV secret as a field map.
type Reader interface {
	ReadKV(ctx context.Context, path string) (map[string]any, error)
}

// Option configures a VaultClient.
type Option func(*VaultClient)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *VaultClient) {
		c.logger = logger
	}
}

// VaultClient reads secrets from a KV v2 mount.
type VaultClient struct {
	api    *vaultapi.Client
	mount  string
	retry  retry.Config
	logger observability.Logger
}

// NewVaultClient creates a client for cfg. Retries are handled by the
// client itself rather than the Vault SDK.
func NewVaultClient(cfg VaultConfig, opts ...Option) (*VaultClient, error) {
	if cfg.Address == "" {
		return nil, &Error{Op: "configure", Err: fmt.Errorf("%w: address is required", ErrInvalidConfig)}
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address
	apiCfg.Timeout = cfg.Timeout
	apiCfg.MaxRetries = 0

	api, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, &Error{Op: "configure", Err: err}
	}
	if cfg.Token != "" {
		api.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	c := &VaultClient{
		api:    api,
		mount:  strings.Trim(cfg.Mount, "/"),
		retry:  cfg.Retry,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ReadKV reads the latest version of the secret at path.
func (c *VaultClient) ReadKV(ctx context.Context, path string) (map[string]any, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, &Error{Op: "read", Err: fmt.Errorf("%w: path is required", ErrInvalidConfig)}
	}
	fullPath := c.mount + "/data/" + path

	secret, err := retry.DoValue(ctx, c.retry, func(ctx context.Context) (*vaultapi.Secret, error) {
		return c.api.Logical().ReadWithContext(ctx, fullPath)
	}, isRetryable, retry.WithName("vault_kv_read"), retry.WithLogger(c.logger))
	if err != nil {
		return nil, &Error{Op: "read", Path: fullPath, Err: err}
	}
	if secret == nil || secret.Data == nil {
		return nil, &Error{Op: "read", Path: fullPath, Err: ErrSecretNotFound}
	}

	// Soft-deleted versions carry "data": null.
	raw, ok := secret.Data["data"]
	if !ok || raw == nil {
		return nil, &Error{Op: "read", Path: fullPath, Err: ErrSecretNotFound}
	}
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, &Error{Op: "read", Path: fullPath, Err: fmt.Errorf("unexpected data type %T", raw)}
	}

	c.logger.Debug("secret read", observability.String("path", fullPath))
	return data, nil
}

func isRetryable(err error) bool {
	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode >= http.StatusInternalServerError ||
			respErr.StatusCode == http.StatusTooManyRequests
	}
	return retry.IsNetworkError(err)
}
