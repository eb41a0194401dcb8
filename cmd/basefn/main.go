// Package main is the entry point for the basefn function server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/vyrodovalexey/basefn/internal/config"
	"github.com/vyrodovalexey/basefn/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const envConfigPath = "BASEFN_CONFIG"

const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

// Flags are built per app because cli.Flag values record parse state.
func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    flagConfig,
		Aliases: []string{"c"},
		Usage:   "path to the YAML configuration file; defaults and environment overrides apply when empty",
		EnvVars: []string{envConfigPath},
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		configFlag(),
		&cli.StringFlag{
			Name:  flagLogLevel,
			Usage: "override logging.level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:  flagLogFormat,
			Usage: "override logging.format (json, console)",
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	serve := &cli.Command{
		Name:   "serve",
		Usage:  "serve functions over HTTP",
		Flags:  runFlags(),
		Action: serveAction,
	}

	return &cli.App{
		Name:      "basefn",
		Usage:     "request-handling runtime for stateless backend functions",
		Version:   version,
		Writer:    out,
		ErrWriter: out,
		Flags:     runFlags(),
		Action:    serveAction,
		Commands: []*cli.Command{
			serve,
			{
				Name:   "migrate",
				Usage:  "create the datastore tables and exit",
				Flags:  runFlags(),
				Action: migrateAction,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the configuration",
				Flags:  []cli.Flag{configFlag()},
				Action: checkConfigAction,
			},
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(cCtx *cli.Context) error {
					printVersion(cCtx.App.Writer)
					return nil
				},
			},
		},
	}
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "basefn version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// loadConfig loads, overrides and validates the configuration.
func loadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cCtx.String(flagConfig))
	if err != nil {
		return nil, err
	}
	if lvl := cCtx.String(flagLogLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if format := cCtx.String(flagLogFormat); format != "" {
		cfg.Logging.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (observability.Logger, error) {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.With(observability.String("version", version)), nil
}

func serveAction(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cCtx.Context
	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", observability.Error(err))
		return err
	}
	defer app.close()

	logger.Info("starting basefn",
		observability.String("address", cfg.Server.Address),
		observability.Any("functions", app.server.Functions()),
	)
	return app.server.Run(ctx)
}

func migrateAction(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := openDatastore(cCtx.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(cCtx.Context); err != nil {
		return err
	}
	fmt.Fprintf(cCtx.App.Writer, "datastore migrated (%s)\n", db.Driver())
	return nil
}

func checkConfigAction(cCtx *cli.Context) error {
	_, err := loadConfig(cCtx)
	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			fmt.Fprintf(cCtx.App.Writer, "  - %s\n", e.Error())
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cCtx.App.Writer, "configuration is valid")
	return nil
}
