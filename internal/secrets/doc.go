// Package secrets resolves process credentials from a HashiCorp Vault
// KV version 2 secrets engine at startup.
package secrets
