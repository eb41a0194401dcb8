package ratelimit

import (
	"github.com/vyrodovalexey/basefn/internal/auth"
)

// Key returns the counter identifier for a caller of function: the user id
// when the caller is a user, otherwise the client address.
func Key(function string, caller auth.Identity, clientIP string) string {
	if caller.IsUser() && caller.UserID() != "" {
		return function + ":user:" + caller.UserID()
	}
	if clientIP == "" {
		clientIP = auth.UnknownClientIP
	}
	return function + ":ip:" + clientIP
}
