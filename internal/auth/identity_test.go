package auth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_Variants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		identity Identity
		kind     Kind
		userID   string
		str      string
	}{
		{name: "zero value", identity: Identity{}, kind: KindAnonymous, str: "anonymous"},
		{name: "anonymous", identity: Anonymous(), kind: KindAnonymous, str: "anonymous"},
		{name: "service", identity: Service(), kind: KindService, str: "service"},
		{name: "user", identity: User("u-1"), kind: KindUser, userID: "u-1", str: "user:u-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.kind, tt.identity.Kind())
			assert.Equal(t, tt.userID, tt.identity.UserID())
			assert.Equal(t, tt.str, tt.identity.String())
			assert.Equal(t, tt.kind == KindAnonymous, tt.identity.IsAnonymous())
			assert.Equal(t, tt.kind == KindUser, tt.identity.IsUser())
			assert.Equal(t, tt.kind == KindService, tt.identity.IsService())
		})
	}
}

func TestIdentity_MarshalJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(User("u-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"user","userId":"u-1"}`, string(data))

	data, err = json.Marshal(Service())
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"service"}`, string(data))
}
