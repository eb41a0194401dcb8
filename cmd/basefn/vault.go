package main

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/basefn/internal/config"
	"github.com/vyrodovalexey/basefn/internal/observability"
	"github.com/vyrodovalexey/basefn/internal/secrets"
)

// resolveCredentials returns the service-role key and JWT secret. When
// Vault is enabled its values take precedence over the configuration.
func resolveCredentials(ctx context.Context, cfg *config.Config, logger observability.Logger) (secrets.Credentials, error) {
	fallback := secrets.Credentials{
		ServiceRoleKey: cfg.Auth.ServiceRoleKey,
		JWTSecret:      cfg.Auth.JWT.Secret,
	}

	vc := cfg.Secrets.Vault
	if !vc.Enabled {
		return fallback, nil
	}

	client, err := secrets.NewVaultClient(secrets.VaultConfig{
		Address:   vc.Address,
		Token:     vc.Token,
		Namespace: vc.Namespace,
		Mount:     vc.Mount,
		Timeout:   vc.Timeout.Duration(),
		Retry:     retryConfig(cfg.Resilience.Retry),
	}, secrets.WithLogger(logger))
	if err != nil {
		return secrets.Credentials{}, fmt.Errorf("failed to create vault client: %w", err)
	}

	creds, err := secrets.ResolveCredentials(ctx, client, vc.Path, secrets.Fields{
		ServiceRoleKey: vc.ServiceRoleKeyField,
		JWTSecret:      vc.JWTSecretField,
	})
	if err != nil {
		return secrets.Credentials{}, fmt.Errorf("failed to read credentials from vault: %w", err)
	}

	logger.Info("credentials loaded from vault",
		observability.String("path", vc.Path),
		observability.Bool("service_role_key", creds.ServiceRoleKey != ""),
		observability.Bool("jwt_secret", creds.JWTSecret != ""),
	)
	return creds.Overlay(fallback), nil
}
