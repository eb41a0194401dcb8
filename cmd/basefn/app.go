package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/audit"
	"github.com/vyrodovalexey/basefn/internal/auth"
	"github.com/vyrodovalexey/basefn/internal/auth/jwt"
	"github.com/vyrodovalexey/basefn/internal/circuitbreaker"
	"github.com/vyrodovalexey/basefn/internal/config"
	"github.com/vyrodovalexey/basefn/internal/datastore"
	"github.com/vyrodovalexey/basefn/internal/functions"
	"github.com/vyrodovalexey/basefn/internal/observability"
	"github.com/vyrodovalexey/basefn/internal/ratelimit"
	"github.com/vyrodovalexey/basefn/internal/ratelimit/store"
	"github.com/vyrodovalexey/basefn/internal/retry"
	"github.com/vyrodovalexey/basefn/internal/runtime"
	"github.com/vyrodovalexey/basefn/internal/server"
)

// application holds the wired components of a running process.
type application struct {
	config  *config.Config
	logger  observability.Logger
	tracer  *observability.Tracer
	metrics *observability.Metrics
	db      *datastore.DB
	limiter *ratelimit.Limiter
	audit   *audit.Logger
	runtime *runtime.Runtime
	server  *server.Server
}

// newApplication builds every component from cfg. On error the components
// created so far are released.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: observability.NewMetrics(observability.DefaultNamespace),
	}
	if err := app.build(ctx); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (a *application) build(ctx context.Context) error {
	cfg, logger := a.config, a.logger

	var err error

	a.tracer, err = observability.NewTracer(ctx, observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	creds, err := resolveCredentials(ctx, cfg, logger)
	if err != nil {
		return err
	}

	a.db, err = openDatastore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cfg.Datastore.AutoMigrate {
		if err = a.db.Migrate(ctx); err != nil {
			return err
		}
	}

	resolver, err := newResolver(ctx, cfg, creds.ServiceRoleKey, creds.JWTSecret, a.metrics, logger)
	if err != nil {
		return err
	}

	var limiter runtime.RateLimiter
	if cfg.RateLimit.Enabled {
		a.limiter, err = newLimiter(ctx, cfg, a.db, a.metrics, logger)
		if err != nil {
			return err
		}
		limiter = a.limiter
	}

	errOpts := []apierr.HandlerOption{
		apierr.WithLogger(logger),
		apierr.WithRegisterer(a.metrics.Registry()),
	}
	if cfg.Audit.Enabled {
		a.audit, err = newAuditLogger(cfg, a.db, a.metrics, logger)
		if err != nil {
			return err
		}
		errOpts = append(errOpts, apierr.WithAuditor(a.audit))
	}

	a.runtime = runtime.New(runtime.Deps{
		Resolver:  resolver,
		Limiter:   limiter,
		Datastore: a.db,
		Errors:    apierr.NewHandler(errOpts...),
		Metrics:   a.metrics,
		Tracer:    a.tracer,
		Logger:    logger,
	}, runtime.WithDefaultMaxBodyBytes(cfg.Server.MaxBodyBytes))

	a.server = server.New(server.Config{
		Address:         cfg.Server.Address,
		ReadTimeout:     cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:    cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:     cfg.Server.IdleTimeout.Duration(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	},
		server.WithLogger(logger),
		server.WithMetricsHandler(a.metrics.Handler()),
		server.WithReadinessCheck("datastore", a.db.Ping),
	)

	a.registerFunctions()
	return nil
}

// registerFunctions mounts every enabled built-in function with its
// configured overrides.
func (a *application) registerFunctions() {
	breakerCfg := circuitbreaker.Config{
		FailureThreshold: a.config.Resilience.CircuitBreaker.FailureThreshold,
		Timeout:          a.config.Resilience.CircuitBreaker.Timeout.Duration(),
		IsSuccessful:     circuitbreaker.IgnoreClientErrors,
	}
	defs := functions.Builtins(functions.Deps{
		Breakers: circuitbreaker.NewRegistry(breakerCfg, a.logger),
		Retry:    retryConfig(a.config.Resilience.Retry),
		Logger:   a.logger,
	})

	for _, def := range defs {
		fc := a.config.Function(def.Name)
		if fc.Disabled {
			a.logger.Info("function disabled", observability.String("function", def.Name))
			continue
		}
		a.server.Register(def.Name, a.runtime.Function(def.Name, def.Handler, functionOptions(fc)...))
	}
}

func functionOptions(fc config.FunctionConfig) []runtime.FunctionOption {
	var opts []runtime.FunctionOption
	if fc.MaxBodyBytes > 0 {
		opts = append(opts, runtime.WithMaxBodyBytes(fc.MaxBodyBytes))
	}
	if rl := fc.RateLimit; rl != nil {
		if rl.Disabled {
			opts = append(opts, runtime.WithoutRateLimit())
		} else {
			opts = append(opts, runtime.WithRateLimit(rl.Limit, rl.Window.Duration()))
		}
	}
	return opts
}

func retryConfig(c config.RetryConfig) retry.Config {
	return retry.Config{
		MaxRetries:   c.MaxRetries,
		BaseDelay:    c.BaseDelay.Duration(),
		MaxDelay:     c.MaxDelay.Duration(),
		JitterFactor: c.JitterFactor,
	}
}

func openDatastore(ctx context.Context, cfg *config.Config, logger observability.Logger) (*datastore.DB, error) {
	db, err := datastore.Open(ctx, datastore.Config{
		Driver:          datastore.Driver(cfg.Datastore.Driver),
		URL:             cfg.Datastore.URL,
		MaxOpenConns:    cfg.Datastore.MaxOpenConns,
		MaxIdleConns:    cfg.Datastore.MaxIdleConns,
		ConnMaxLifetime: cfg.Datastore.ConnMaxLifetime.Duration(),
		SwitchRole:      cfg.Datastore.SwitchRole,
	}, datastore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}
	return db, nil
}

func newResolver(
	ctx context.Context,
	cfg *config.Config,
	serviceKey, jwtSecret string,
	metrics *observability.Metrics,
	logger observability.Logger,
) (*auth.Resolver, error) {
	authMetrics := auth.NewMetrics(observability.DefaultNamespace)
	authMetrics.Register(metrics.Registry())
	opts := []auth.Option{auth.WithLogger(logger), auth.WithMetrics(authMetrics)}

	jwtCfg := cfg.Auth.JWT
	jwtCfg.Secret = jwtSecret
	if !jwtCfg.Enabled() {
		logger.Warn("no JWT key material configured; bearer tokens other than the service key are rejected")
		return auth.NewResolver(serviceKey, nil, opts...), nil
	}

	verifier, err := jwt.NewVerifier(ctx, jwt.Config{
		Secret:      jwtCfg.Secret,
		Algorithm:   jwtCfg.Algorithm,
		JWKSURL:     jwtCfg.JWKSURL,
		JWKSRefresh: jwtCfg.JWKSRefresh.Duration(),
		Issuer:      jwtCfg.Issuer,
		Audience:    jwtCfg.Audience,
		ClockSkew:   jwtCfg.ClockSkew.Duration(),
		RoleClaim:   jwtCfg.RoleClaim,
	}, jwt.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT verifier: %w", err)
	}
	return auth.NewResolver(serviceKey, verifier, opts...), nil
}

func newLimiter(
	ctx context.Context,
	cfg *config.Config,
	db *datastore.DB,
	metrics *observability.Metrics,
	logger observability.Logger,
) (*ratelimit.Limiter, error) {
	rl := cfg.RateLimit
	opts := ratelimit.StoreOptions{
		Backend:   ratelimit.Backend(rl.Backend),
		Datastore: db,
	}
	if opts.Backend == ratelimit.BackendRedis {
		redisCfg := store.DefaultRedisConfig()
		redisCfg.Address = rl.Redis.Address
		redisCfg.Password = rl.Redis.Password
		redisCfg.DB = rl.Redis.DB
		redisCfg.Prefix = rl.Redis.Prefix
		redisCfg.PoolSize = rl.Redis.PoolSize
		redisCfg.DialTimeout = rl.Redis.DialTimeout.Duration()
		redisCfg.ConnectionRetries = rl.Redis.ConnectionRetries
		redisCfg.Logger = observability.Zap(logger)
		opts.Redis = redisCfg
	}

	s, err := ratelimit.NewStore(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}

	logger.Info("rate limiter initialized",
		observability.String("backend", string(opts.Backend)),
		observability.Int("limit", rl.Limit),
		observability.Duration("window", rl.Window.Duration()),
		observability.String("failure_policy", rl.FailurePolicy),
	)
	return ratelimit.New(s, ratelimit.Config{
		Limit:         rl.Limit,
		Window:        rl.Window.Duration(),
		FailurePolicy: ratelimit.FailurePolicy(rl.FailurePolicy),
	},
		ratelimit.WithLogger(logger),
		ratelimit.WithRegisterer(metrics.Registry()),
	), nil
}

func newAuditLogger(
	cfg *config.Config,
	db *datastore.DB,
	metrics *observability.Metrics,
	logger observability.Logger,
) (*audit.Logger, error) {
	ac := cfg.Audit
	opts := []audit.Option{
		audit.WithLogger(logger),
		audit.WithRegisterer(metrics.Registry()),
	}
	if ac.Datastore {
		opts = append(opts, audit.WithSink(audit.NewDatastoreSink(db)))
	}

	l, err := audit.NewLogger(audit.Config{
		Enabled:       ac.Enabled,
		Output:        ac.Output,
		Datastore:     ac.Datastore,
		RatePerSecond: ac.RatePerSecond,
		Burst:         ac.Burst,
		RedactFields:  ac.RedactFields,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	return l, nil
}

// close releases every component in reverse order of creation.
func (a *application) close() {
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("failed to close audit logger", observability.Error(err))
		}
	}
	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
			a.logger.Warn("failed to close rate limiter", observability.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close datastore", observability.Error(err))
		}
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to shutdown tracer", observability.Error(err))
		}
	}
}
