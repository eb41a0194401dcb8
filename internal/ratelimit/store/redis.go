package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	redisStoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "basefn",
			Name:      "ratelimit_redis_operations_total",
			Help:      "Total number of Redis rate limit store operations",
		},
		[]string{"status"},
	)

	redisStoreOperationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "basefn",
			Name:      "ratelimit_redis_operation_duration_seconds",
			Help:      "Duration of Redis rate limit store operations in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	redisStoreConnectionRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "basefn",
			Name:      "ratelimit_redis_connection_retries_total",
			Help:      "Total number of Redis connection retry attempts",
		},
	)
)

// hitScript performs the fixed-window hit atomically.
// KEYS[1] = key
// ARGV[1] = now in unix milliseconds
// ARGV[2] = window in milliseconds
// Returns {window_start_ms, count}.
var hitScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local state = redis.call('HMGET', KEYS[1], 'start', 'count')
	local start = tonumber(state[1])
	local count = tonumber(state[2])
	if start == nil or count == nil or now - start >= window then
		start = now
		count = 1
	else
		count = count + 1
	end
	redis.call('HSET', KEYS[1], 'start', start, 'count', count)
	local ttl = start + window - now
	if ttl < 1 then
		ttl = 1
	end
	redis.call('PEXPIRE', KEYS[1], ttl)
	return {start, count}
`)

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// InitialBackoff and MaxBackoff bound the connection retry delays.
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	ConnectionRetries int

	Logger *zap.Logger
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:           "localhost:6379",
		Prefix:            "ratelimit:",
		PoolSize:          10,
		DialTimeout:       5 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      3 * time.Second,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		ConnectionRetries: 5,
	}
}

// RedisStore implements Store using Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
	owned  bool

	mu     sync.Mutex
	closed bool
}

// NewRedisStore connects to Redis, retrying with decorrelated jitter.
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	if err := connectWithRetry(ctx, client, config, logger); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client, prefix: config.Prefix, logger: logger, owned: true}, nil
}

// NewRedisStoreFromClient wraps an existing client. Close leaves the client open.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, logger: zap.NewNop()}
}

func connectWithRetry(ctx context.Context, client *redis.Client, config *RedisConfig, logger *zap.Logger) error {
	maxRetries := config.ConnectionRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := newDecorrelatedJitterBackoff(config.InitialBackoff, config.MaxBackoff)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
		lastErr = client.Ping(pingCtx).Err()
		cancel()

		if lastErr == nil {
			if attempt > 0 {
				logger.Info("Redis connection established after retry",
					zap.String("address", config.Address),
					zap.Int("attempt", attempt+1),
				)
			}
			return nil
		}

		if attempt == maxRetries {
			break
		}

		wait := backoff.next(attempt)
		logger.Debug("Redis connection failed, retrying",
			zap.String("address", config.Address),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(lastErr),
		)
		redisStoreConnectionRetries.Inc()

		select {
		case <-ctx.Done():
			return fmt.Errorf("connection aborted during backoff: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries+1, lastErr)
}

// decorrelatedJitterBackoff computes sleep = min(cap, random_between(base, sleep*3)).
type decorrelatedJitterBackoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newDecorrelatedJitterBackoff(initial, maxDuration time.Duration) *decorrelatedJitterBackoff {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if maxDuration < initial {
		maxDuration = initial
	}
	return &decorrelatedJitterBackoff{initial: initial, max: maxDuration, current: initial}
}

func (b *decorrelatedJitterBackoff) next(attempt int) time.Duration {
	if attempt == 0 {
		b.current = b.initial
		return b.current
	}

	lo := float64(b.initial)
	hi := float64(b.current) * 3
	//nolint:gosec // weak random is acceptable for jitter
	backoff := lo + rand.Float64()*(hi-lo)
	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	b.current = time.Duration(backoff)
	return b.current
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, identifier string, now time.Time, window time.Duration) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, fmt.Errorf("context error before redis hit: %w", err)
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Record{}, ErrClosed
	}

	start := time.Now()
	res, err := hitScript.Run(ctx, s.client,
		[]string{s.prefix + identifier},
		now.UnixMilli(), window.Milliseconds(),
	).Int64Slice()
	redisStoreOperationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		redisStoreOperationsTotal.WithLabelValues("error").Inc()
		return Record{}, fmt.Errorf("redis hit error: %w", err)
	}
	if len(res) != 2 {
		redisStoreOperationsTotal.WithLabelValues("error").Inc()
		return Record{}, fmt.Errorf("redis hit: unexpected reply length %d", len(res))
	}

	redisStoreOperationsTotal.WithLabelValues("success").Inc()
	return Record{
		Identifier:  identifier,
		WindowStart: time.UnixMilli(res[0]),
		Count:       res[1],
	}, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.owned {
		return s.client.Close()
	}
	return nil
}
