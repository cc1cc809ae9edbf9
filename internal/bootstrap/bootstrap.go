// Package bootstrap builds the engine components shared by the binaries from
// the loaded configuration.
package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/config"
	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/content"
	"github.com/cory-johannsen/idlebattle/internal/game/offline"
	"github.com/cory-johannsen/idlebattle/internal/game/session"
	"github.com/cory-johannsen/idlebattle/internal/scripting"
)

// Catalog loads the content table from cfg.Dir, or returns the built-in
// content when Dir is empty.
//
// Postcondition: Returns a cross-checked catalog or a non-nil error.
func Catalog(cfg config.ContentConfig, logger *zap.Logger) (*content.Catalog, error) {
	if cfg.Dir == "" {
		logger.Info("using built-in content")
		return content.Default(), nil
	}
	c, err := content.LoadDirectory(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}
	logger.Info("content loaded",
		zap.String("dir", cfg.Dir),
		zap.Int("enemies", len(c.EnemyIDs())),
		zap.Int("professions", len(c.ProfessionIDs())),
		zap.Int("procs", len(c.ProcIDs())),
	)
	return c, nil
}

// Engine converts cfg into the engine configuration. With the "lua"
// strategy the mitigation script is loaded and attached; the returned
// cleanup closes its VM and must be called once the engine is no longer used.
//
// Postcondition: Returns a validated combat.Config, or a non-nil error and a
// nil cleanup.
func Engine(cfg config.CombatConfig, logger *zap.Logger) (combat.Config, func(), error) {
	engine := cfg.Engine()
	cleanup := func() {}
	if cfg.Mitigation.Strategy == "lua" {
		m, err := scripting.LoadMitigation(cfg.Mitigation.Script, cfg.Mitigation.InstructionLimit, logger)
		if err != nil {
			return combat.Config{}, nil, fmt.Errorf("loading mitigation script: %w", err)
		}
		engine.Strategy = m
		cleanup = m.Close
	}
	if err := engine.Validate(); err != nil {
		cleanup()
		return combat.Config{}, nil, err
	}
	return engine, cleanup, nil
}

// SessionOptions converts the live configuration. The sink may be nil.
func SessionOptions(cfg config.LiveConfig, sink session.ResultSink) session.Options {
	opts := session.Options{
		Speed:       cfg.Speed,
		IdleTimeout: cfg.IdleTimeout,
		FeedBuffer:  cfg.FeedBuffer,
	}
	if sink != nil {
		opts.Sink = sink
	}
	return opts
}

// OfflineOptions converts the offline configuration.
func OfflineOptions(cfg config.OfflineConfig) offline.Options {
	return offline.Options{
		EncounterTimeout: cfg.EncounterTimeout,
		RespawnDelay:     cfg.RespawnDelay,
		CheckEvery:       cfg.CheckEvery,
		WallBudget:       cfg.WallBudget,
	}
}
