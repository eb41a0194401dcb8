package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/basefn/internal/ratelimit/store"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, StoreOptions{})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, s)
	_ = s.Close()

	mr := miniredis.RunT(t)
	cfg := store.DefaultRedisConfig()
	cfg.Address = mr.Addr()
	s, err = NewStore(ctx, StoreOptions{Backend: BackendRedis, Redis: cfg})
	require.NoError(t, err)
	assert.IsType(t, &store.RedisStore{}, s)
	_ = s.Close()

	_, err = NewStore(ctx, StoreOptions{Backend: BackendDatastore})
	assert.Error(t, err)

	_, err = NewStore(ctx, StoreOptions{Backend: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
