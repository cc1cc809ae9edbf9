// Package main provides the battle server binary that runs live battles and
// offline settlement behind a gRPC service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/config"
	"github.com/cory-johannsen/idlebattle/internal/observability"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "battleserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	lc, cleanup, err := initializeLifecycle(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("initializing battle server", zap.Error(err))
	}

	logger.Info("battle server ready",
		zap.String("grpc_addr", cfg.GameServer.Addr()),
		zap.String("mitigation", cfg.Combat.Mitigation.Strategy),
		zap.Bool("persistence", cfg.Database.Enabled),
		zap.Duration("startup", time.Since(start)),
	)

	runErr := lc.Run(ctx)
	cleanup()
	if runErr != nil {
		logger.Error("battle server stopped", zap.Error(runErr))
		_ = logger.Sync()
		os.Exit(1)
	}
}
