package auth

import (
	"encoding/json"
)

// Kind is the caller classification.
type Kind int

// Caller kinds.
const (
	KindAnonymous Kind = iota
	KindUser
	KindService
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindService:
		return "service"
	default:
		return "anonymous"
	}
}

// Identity is the resolved caller. The zero value is Anonymous.
type Identity struct {
	kind   Kind
	userID string
}

// Anonymous returns the identity of a caller without credentials.
func Anonymous() Identity {
	return Identity{kind: KindAnonymous}
}

// User returns the identity of an end user.
func User(id string) Identity {
	return Identity{kind: KindUser, userID: id}
}

// Service returns the identity of a trusted backend caller.
func Service() Identity {
	return Identity{kind: KindService}
}

// Kind returns the caller classification.
func (i Identity) Kind() Kind { return i.kind }

// UserID returns the user id. It is empty unless the identity is a User.
func (i Identity) UserID() string { return i.userID }

// IsAnonymous reports whether the caller presented no credential.
func (i Identity) IsAnonymous() bool { return i.kind == KindAnonymous }

// IsUser reports whether the caller is an end user.
func (i Identity) IsUser() bool { return i.kind == KindUser }

// IsService reports whether the caller is a trusted backend.
func (i Identity) IsService() bool { return i.kind == KindService }

// String returns "anonymous", "service" or "user:<id>".
func (i Identity) String() string {
	if i.kind == KindUser {
		return "user:" + i.userID
	}
	return i.kind.String()
}

// MarshalJSON encodes the identity as {"kind":..,"userId":..}.
func (i Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind   string `json:"kind"`
		UserID string `json:"userId,omitempty"`
	}{Kind: i.kind.String(), UserID: i.userID})
}
