// Package main provides battlesim, a command-line runner for the battle
// engine. Paused battles and final results are kept in a local SQLite file.
//
// Usage:
//
//	battlesim [-config path] [-db path] <command> [flags]
//
// Commands: run, start, resume, settle, list, show.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/bootstrap"
	"github.com/cory-johannsen/idlebattle/internal/config"
	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/content"
	"github.com/cory-johannsen/idlebattle/internal/observability"
)

var errUsage = errors.New("usage: battlesim [-config path] [-db path] <run|start|resume|settle|list|show> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// app holds what every command needs.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	catalog *content.Catalog
	engine  combat.Config
	out     io.Writer
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("battlesim", flag.ContinueOnError)
	configPath := global.String("config", "", "path to configuration file; defaults and IDLEBATTLE_ variables when empty")
	dbPath := global.String("db", "", "SQLite database path; overrides sqlite.path")
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *dbPath != "" {
		cfg.SQLite.Path = *dbPath
	}
	logger, err := observability.NewLogger(cfg.Logging, "battlesim")
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	catalog, err := bootstrap.Catalog(cfg.Content, logger)
	if err != nil {
		return err
	}
	engine, cleanup, err := bootstrap.Engine(cfg.Combat, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	a := &app{cfg: cfg, logger: logger, catalog: catalog, engine: engine, out: stdout}
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "run":
		return a.runBattle(ctx, cmdArgs)
	case "start":
		return a.start(ctx, cmdArgs)
	case "resume":
		return a.resume(ctx, cmdArgs)
	case "settle":
		return a.settle(ctx, cmdArgs)
	case "list":
		return a.list(ctx, cmdArgs)
	case "show":
		return a.show(ctx, cmdArgs)
	default:
		return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
	}
}
