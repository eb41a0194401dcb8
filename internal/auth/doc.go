// Package auth classifies the caller of a function from its request.
//
// Every request resolves to exactly one of three identities: Anonymous
// (no credential), Service (the privileged backend credential) or User
// (a verified bearer token). A credential that is present but cannot be
// verified is rejected with UNAUTHORIZED; it never degrades to Anonymous.
package auth
