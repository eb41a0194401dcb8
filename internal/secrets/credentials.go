package secrets

import (
	"context"
	"fmt"
)

// Credentials are the process credentials kept in the secret store.
type Credentials struct {
	ServiceRoleKey string
	JWTSecret      string
}

// Fields names the secret fields holding each credential. An empty name
// skips that credential.
type Fields struct {
	ServiceRoleKey string
	JWTSecret      string
}

// ResolveCredentials reads the secret at path and extracts the named
// fields. Absent fields resolve to empty strings.
func ResolveCredentials(ctx context.Context, r Reader, path string, fields Fields) (Credentials, error) {
	data, err := r.ReadKV(ctx, path)
	if err != nil {
		return Credentials{}, err
	}

	var creds Credentials
	if creds.ServiceRoleKey, err = stringField(data, path, fields.ServiceRoleKey); err != nil {
		return Credentials{}, err
	}
	if creds.JWTSecret, err = stringField(data, path, fields.JWTSecret); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func stringField(data map[string]any, path, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	v, ok := data[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &Error{Op: "resolve", Path: path, Err: fmt.Errorf("%w: %s is %T", ErrInvalidField, name, v)}
	}
	return s, nil
}

// Overlay returns c with empty fields filled from fallback.
func (c Credentials) Overlay(fallback Credentials) Credentials {
	if c.ServiceRoleKey == "" {
		c.ServiceRoleKey = fallback.ServiceRoleKey
	}
	if c.JWTSecret == "" {
		c.JWTSecret = fallback.JWTSecret
	}
	return c
}
