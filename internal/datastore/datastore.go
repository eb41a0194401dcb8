// Package datastore provides the SQL-backed row store shared by functions:
// fixed-window rate-limit counters, audit rows and the caller-scoped
// key/value table.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/vyrodovalexey/basefn/internal/observability"
)

// Driver names a supported SQL backend.
type Driver string

// Supported drivers.
const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Datastore errors.
var (
	ErrUnsupportedDriver = errors.New("unsupported datastore driver")
	ErrNotFound          = errors.New("entry not found")
	ErrNoOwner           = errors.New("anonymous callers cannot own entries")
	ErrClosed            = errors.New("datastore closed")
)

// Config configures the datastore connection.
type Config struct {
	Driver          Driver
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// SwitchRole additionally issues SET LOCAL ROLE for scoped transactions
	// on Postgres. The database must define the roles.
	SwitchRole bool
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(db *DB) {
		db.logger = logger
	}
}

// WithClock overrides the clock used for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// DB is an open datastore.
type DB struct {
	sql        *sql.DB
	driver     Driver
	switchRole bool
	logger     observability.Logger
	now        func() time.Time
}

// Open connects to the datastore described by cfg and verifies the
// connection.
func Open(ctx context.Context, cfg Config, opts ...Option) (*DB, error) {
	var (
		conn *sql.DB
		err  error
	)

	switch cfg.Driver {
	case DriverPostgres:
		conn, err = openPostgres(cfg)
	case DriverSQLite, "":
		cfg.Driver = DriverSQLite
		conn, err = openSQLite(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	db := &DB{
		sql:        conn,
		driver:     cfg.Driver,
		switchRole: cfg.SwitchRole,
		logger:     observability.NopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db.logger.Info("datastore connected", observability.String("driver", string(db.driver)))
	return db, nil
}

func openPostgres(cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres datastore requires a URL")
	}
	conn, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	conn.SetMaxOpenConns(maxOpen)
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return conn, nil
}

func openSQLite(cfg Config) (*sql.DB, error) {
	dsn := strings.TrimSpace(cfg.URL)
	if dsn == "" {
		dsn = ":memory:"
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		abs, err := filepath.Abs(dsn)
		if err != nil {
			return nil, fmt.Errorf("resolve sqlite path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn = abs + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; an in-memory database also lives and
	// dies with its one connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	return conn, nil
}

// Driver returns the backend in use.
func (db *DB) Driver() Driver {
	return db.driver
}

// SQL returns the underlying connection pool.
func (db *DB) SQL() *sql.DB {
	return db.sql
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.sql.PingContext(ctx); err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return ErrClosed
		}
		return fmt.Errorf("ping %s: %w", db.driver, err)
	}
	return nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}

// rebind rewrites ? placeholders into the driver's positional form.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
