// Package jwt verifies end-user bearer tokens for the auth resolver.
//
// Tokens are checked against either a shared HMAC secret or a remote JWKS
// that is cached and refreshed in the background:
//
//	v, err := jwt.NewVerifier(ctx, jwt.Config{Secret: secret})
//	resolver := auth.NewResolver(serviceKey, v)
package jwt
