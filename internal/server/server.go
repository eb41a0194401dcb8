// Package server exposes functions over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/atomic"

	"github.com/vyrodovalexey/basefn/internal/apierr"
	"github.com/vyrodovalexey/basefn/internal/observability"
	"github.com/vyrodovalexey/basefn/internal/reqctx"
	"github.com/vyrodovalexey/basefn/internal/runtime"
)

// FunctionsPrefix is the path prefix functions are served under.
const FunctionsPrefix = "/functions/v1/"

// Default timeouts.
const (
	DefaultShutdownTimeout = 15 * time.Second
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Config configures the HTTP server.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// DrainDuration is how long the server reports not ready before it
	// stops accepting connections.
	DrainDuration time.Duration
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler exposes h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithReadinessCheck adds a named dependency check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) {
		s.checks = append(s.checks, namedCheck{name: name, check: check})
	}
}

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// Server routes requests to registered functions.
type Server struct {
	cfg       Config
	engine    *gin.Engine
	logger    observability.Logger
	metrics   http.Handler
	checks    []namedCheck
	ready     atomic.Bool
	functions []string
}

// New creates a server. It reports ready once Run starts listening.
func New(cfg Config, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}

	s := &Server{
		cfg:    cfg,
		engine: gin.New(),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(gin.CustomRecovery(s.recover))
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/readyz", s.handleReady)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}
	s.engine.NoRoute(s.handleNoRoute)

	return s
}

// Register serves h at /functions/v1/<name>, with optional session and
// job path segments bound as path parameters.
func (s *Server) Register(name string, h http.Handler) {
	base := FunctionsPrefix + name
	handler := bindPathParams(h)

	s.engine.Any(base, handler)
	s.engine.Any(base+"/session/:"+reqctx.ParamSessionID, handler)
	s.engine.Any(base+"/job/:"+reqctx.ParamJobID, handler)
	s.engine.Any(base+"/session/:"+reqctx.ParamSessionID+"/job/:"+reqctx.ParamJobID, handler)

	s.functions = append(s.functions, name)
	s.logger.Debug("function registered", observability.String("function", name))
}

// Functions returns the registered function names.
func (s *Server) Functions() []string {
	return append([]string(nil), s.functions...)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SetReady sets the readiness flag.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Ready reports the readiness flag.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Run listens on the configured address until ctx is canceled, then
// drains and shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.ready.Store(true)
	s.logger.Info("HTTP server started",
		observability.String("address", ln.Addr().String()),
		observability.Int("functions", len(s.functions)),
	)

	select {
	case err := <-errCh:
		s.ready.Store(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.ready.Store(false)
	if s.cfg.DrainDuration > 0 {
		s.logger.Info("draining", observability.Duration("duration", s.cfg.DrainDuration))
		time.Sleep(s.cfg.DrainDuration)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("stopping HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func bindPathParams(h http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.Request
		if len(c.Params) > 0 {
			params := make(map[string]string, len(c.Params))
			for _, p := range c.Params {
				params[p.Key] = p.Value
			}
			r = r.WithContext(reqctx.WithPathParams(r.Context(), params))
		}
		h.ServeHTTP(c.Writer, r)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}

	failed := make(map[string]string)
	for _, nc := range s.checks {
		if err := nc.check(c.Request.Context()); err != nil {
			failed[nc.name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", observability.Any("checks", failed))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	if c.Request.Method == http.MethodOptions {
		runtime.Preflight(c.Writer)
		return
	}
	apierr.WriteHTTP(c.Writer, apierr.NotFound("Function not found"), runtime.CORSHeaders())
}

func (s *Server) recover(c *gin.Context, recovered any) {
	s.logger.Error("panic outside function pipeline",
		observability.String("path", c.Request.URL.Path),
		observability.Any("error", recovered),
	)
	apierr.WriteHTTP(c.Writer, apierr.New(apierr.CodeInternal, apierr.SafeInternalMessage), runtime.CORSHeaders())
	c.Abort()
}
