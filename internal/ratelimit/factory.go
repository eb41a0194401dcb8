package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/basefn/internal/ratelimit/store"
)

// Backend names a counter store implementation.
type Backend string

// Backends.
const (
	BackendMemory    Backend = "memory"
	BackendRedis     Backend = "redis"
	BackendDatastore Backend = "datastore"
)

// ErrUnknownBackend is returned for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown rate limit backend")

// StoreOptions selects and configures a counter store.
type StoreOptions struct {
	Backend   Backend
	Redis     *store.RedisConfig
	Datastore store.WindowCounter
}

// NewStore builds the counter store named by opts.Backend. An empty
// backend selects the in-memory store.
func NewStore(ctx context.Context, opts StoreOptions) (store.Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return store.NewMemoryStore(), nil
	case BackendRedis:
		return store.NewRedisStore(ctx, opts.Redis)
	case BackendDatastore:
		if opts.Datastore == nil {
			return nil, errors.New("datastore backend requires a datastore")
		}
		return store.NewSQLStore(opts.Datastore), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
