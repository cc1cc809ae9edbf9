//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/config"
	"github.com/cory-johannsen/idlebattle/internal/server"
)

func initializeLifecycle(ctx context.Context, cfg config.Config, logger *zap.Logger) (*server.Lifecycle, func(), error) {
	wire.Build(providerSet)
	return nil, nil, nil
}
