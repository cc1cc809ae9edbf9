package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/idlebattle/internal/battleserver"
	"github.com/cory-johannsen/idlebattle/internal/bootstrap"
	"github.com/cory-johannsen/idlebattle/internal/config"
	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/content"
	"github.com/cory-johannsen/idlebattle/internal/game/offline"
	"github.com/cory-johannsen/idlebattle/internal/game/session"
	"github.com/cory-johannsen/idlebattle/internal/server"
	"github.com/cory-johannsen/idlebattle/internal/storage/postgres"
)

// shutdownTimeout bounds saving the results of live sessions at shutdown.
const shutdownTimeout = 10 * time.Second

var providerSet = wire.NewSet(
	providePersistence,
	provideCatalog,
	provideEngine,
	provideManager,
	provideSettler,
	provideBattleServer,
	provideGRPCServer,
	provideListener,
	provideLifecycle,
)

// persistence holds the optional battle store. Both fields are nil when the
// database is disabled.
type persistence struct {
	store battleserver.Store
	sink  session.ResultSink
}

func providePersistence(ctx context.Context, cfg config.Config, logger *zap.Logger) (persistence, func(), error) {
	if !cfg.Database.Enabled {
		logger.Info("battle persistence disabled")
		return persistence{}, func() {}, nil
	}
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return persistence{}, nil, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	repo := postgres.NewBattleRepository(pool.DB())
	return persistence{store: repo, sink: repo}, pool.Close, nil
}

func provideCatalog(cfg config.Config, logger *zap.Logger) (*content.Catalog, error) {
	return bootstrap.Catalog(cfg.Content, logger)
}

func provideEngine(cfg config.Config, logger *zap.Logger) (combat.Config, func(), error) {
	return bootstrap.Engine(cfg.Combat, logger)
}

func provideManager(cfg config.Config, catalog *content.Catalog, engine combat.Config, p persistence, logger *zap.Logger) *session.Manager {
	return session.NewManager(catalog, engine, bootstrap.SessionOptions(cfg.Live, p.sink), logger)
}

func provideSettler(cfg config.Config, catalog *content.Catalog, engine combat.Config, logger *zap.Logger) (*offline.Settler, error) {
	return offline.NewSettler(catalog, engine, bootstrap.OfflineOptions(cfg.Offline), logger)
}

func provideBattleServer(cfg config.Config, mgr *session.Manager, settler *offline.Settler, p persistence, logger *zap.Logger) *battleserver.Server {
	return battleserver.NewServer(mgr, settler, p.store, battleserver.Options{ExpectedRewards: cfg.Offline.Expected}, logger)
}

func provideGRPCServer(srv *battleserver.Server, logger *zap.Logger) *grpc.Server {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	battleserver.RegisterBattleServiceServer(grpcServer, srv)
	healthpb.RegisterHealthServer(grpcServer, health.NewServer())
	return grpcServer
}

func provideListener(cfg config.Config) (net.Listener, error) {
	lis, err := net.Listen("tcp", cfg.GameServer.Addr())
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", cfg.GameServer.Addr(), err)
	}
	return lis, nil
}

func provideLifecycle(cfg config.Config, mgr *session.Manager, grpcServer *grpc.Server, lis net.Listener, logger *zap.Logger) *server.Lifecycle {
	lc := server.NewLifecycle(logger)
	lc.Add("sessions", server.NewSessionService(mgr, cfg.Live.ReapInterval, shutdownTimeout, logger))
	lc.Add("grpc", server.NewGRPCService(grpcServer, lis))
	return lc
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("elapsed", time.Since(start)),
		)
		return resp, err
	}
}
