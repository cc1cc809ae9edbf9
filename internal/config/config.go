// Package config provides Viper-based configuration loading for the battle
// simulator and server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// Enabled turns on battle persistence in the server.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// SQLiteConfig holds the local store settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File receives the log output instead of stderr when set.
	File string `mapstructure:"file"`
}

// MitigationConfig selects and tunes the damage mitigation strategy.
type MitigationConfig struct {
	// Strategy is "diminishing" (built-in formula) or "lua" (Script).
	Strategy         string  `mapstructure:"strategy"`
	Script           string  `mapstructure:"script"`
	InstructionLimit int     `mapstructure:"instruction_limit"`
	ArmorConstant    float64 `mapstructure:"armor_constant"`
	ArmorLevelScale  float64 `mapstructure:"armor_level_scale"`
	ResistConstant   float64 `mapstructure:"resist_constant"`
	ResistLevelScale float64 `mapstructure:"resist_level_scale"`
	MaxReduction     float64 `mapstructure:"max_reduction"`
	ShieldMultiplier float64 `mapstructure:"shield_multiplier"`
}

// CombatConfig holds engine tuning shared by every battle.
type CombatConfig struct {
	CritMultiplier float64          `mapstructure:"crit_multiplier"`
	HasteFloor     float64          `mapstructure:"haste_floor"`
	SegmentWindow  time.Duration    `mapstructure:"segment_window"`
	PulseInterval  time.Duration    `mapstructure:"pulse_interval"`
	MaxDuration    time.Duration    `mapstructure:"max_duration"`
	Remainder      string           `mapstructure:"remainder"`
	Mitigation     MitigationConfig `mapstructure:"mitigation"`
}

// Engine converts c into the engine configuration. The mitigation strategy
// is left unset; a "lua" strategy is attached by the caller.
func (c CombatConfig) Engine() combat.Config {
	cfg := combat.DefaultConfig()
	cfg.CritMultiplier = c.CritMultiplier
	cfg.HasteFloor = c.HasteFloor
	cfg.SegmentWindow = c.SegmentWindow
	cfg.PulseInterval = c.PulseInterval
	cfg.MaxDuration = c.MaxDuration
	cfg.Remainder = combat.RemainderPolicy(c.Remainder)
	cfg.Mitigation = combat.MitigationConfig{
		ArmorConstant:    c.Mitigation.ArmorConstant,
		ArmorLevelScale:  c.Mitigation.ArmorLevelScale,
		ResistConstant:   c.Mitigation.ResistConstant,
		ResistLevelScale: c.Mitigation.ResistLevelScale,
		MaxReduction:     c.Mitigation.MaxReduction,
		ShieldMultiplier: c.Mitigation.ShieldMultiplier,
	}
	return cfg
}

// LiveConfig holds the live session manager settings.
type LiveConfig struct {
	// Speed is simulated seconds per wall second.
	Speed        float64       `mapstructure:"speed"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	FeedBuffer   int           `mapstructure:"feed_buffer"`
}

// OfflineConfig holds the offline settlement settings.
type OfflineConfig struct {
	CheckEvery       int64         `mapstructure:"check_every"`
	WallBudget       time.Duration `mapstructure:"wall_budget"`
	EncounterTimeout time.Duration `mapstructure:"encounter_timeout"`
	RespawnDelay     time.Duration `mapstructure:"respawn_delay"`
	// Expected selects expectation-based rewards instead of sampled loot.
	Expected bool `mapstructure:"expected"`
}

// GameServerConfig holds battle server gRPC settings.
type GameServerConfig struct {
	// GRPCHost is the bind/connect address for the gRPC service.
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort is the TCP port for the gRPC service.
	GRPCPort int `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GameServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.GRPCHost, g.GRPCPort)
}

// ContentConfig locates the content directory. An empty Dir selects the
// built-in content.
type ContentConfig struct {
	Dir string `mapstructure:"dir"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	Combat     CombatConfig     `mapstructure:"combat"`
	Live       LiveConfig       `mapstructure:"live"`
	Offline    OfflineConfig    `mapstructure:"offline"`
	GameServer GameServerConfig `mapstructure:"gameserver"`
	Content    ContentConfig    `mapstructure:"content"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	validators := []error{
		validateLogging(c.Logging),
		validateDatabase(c.Database),
		validateCombat(c.Combat),
		validateLive(c.Live),
		validateOffline(c.Offline),
		validateGameServer(c.GameServer),
	}
	for _, err := range validators {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.SQLite.Path == "" {
		errs = append(errs, "sqlite.path must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	if !d.Enabled {
		return nil
	}
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateCombat(c CombatConfig) error {
	var errs []string
	switch c.Mitigation.Strategy {
	case "diminishing":
	case "lua":
		if c.Mitigation.Script == "" {
			errs = append(errs, "combat.mitigation.script must be set for the lua strategy")
		}
	default:
		errs = append(errs, fmt.Sprintf("combat.mitigation.strategy must be one of [diminishing, lua], got %q", c.Mitigation.Strategy))
	}
	if c.Mitigation.InstructionLimit < 0 {
		errs = append(errs, "combat.mitigation.instruction_limit must not be negative")
	}
	// The engine owns the numeric invariants.
	if err := c.Engine().Validate(); err != nil {
		errs = append(errs, "combat: "+strings.TrimPrefix(err.Error(), combat.ErrInvalidConfig.Error()+": "))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLive(l LiveConfig) error {
	var errs []string
	if l.Speed <= 0 {
		errs = append(errs, fmt.Sprintf("live.speed must be > 0, got %g", l.Speed))
	}
	if l.IdleTimeout < 0 {
		errs = append(errs, "live.idle_timeout must not be negative")
	}
	if l.IdleTimeout > 0 && l.ReapInterval <= 0 {
		errs = append(errs, "live.reap_interval must be > 0 when live.idle_timeout is set")
	}
	if l.FeedBuffer < 1 {
		errs = append(errs, fmt.Sprintf("live.feed_buffer must be >= 1, got %d", l.FeedBuffer))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateOffline(o OfflineConfig) error {
	var errs []string
	if o.CheckEvery < 1 {
		errs = append(errs, fmt.Sprintf("offline.check_every must be >= 1, got %d", o.CheckEvery))
	}
	if o.WallBudget < 0 {
		errs = append(errs, "offline.wall_budget must not be negative")
	}
	if o.EncounterTimeout <= 0 {
		errs = append(errs, "offline.encounter_timeout must be > 0")
	}
	if o.RespawnDelay < 0 {
		errs = append(errs, "offline.respawn_delay must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateGameServer(g GameServerConfig) error {
	var errs []string
	if g.GRPCHost == "" {
		errs = append(errs, "gameserver.grpc_host must not be empty")
	}
	if g.GRPCPort < 1 || g.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("gameserver.grpc_port must be 1-65535, got %d", g.GRPCPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path loads defaults and
// environment overrides only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with IDLEBATTLE_ prefix
	v.SetEnvPrefix("IDLEBATTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the configuration produced by Load without a file or
// environment overrides.
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: unmarshalling defaults: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "idlebattle")
	v.SetDefault("database.password", "idlebattle")
	v.SetDefault("database.name", "idlebattle")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("sqlite.path", "idlebattle.db")

	v.SetDefault("combat.crit_multiplier", 2.0)
	v.SetDefault("combat.haste_floor", 0.01)
	v.SetDefault("combat.segment_window", "1s")
	v.SetDefault("combat.pulse_interval", "1s")
	v.SetDefault("combat.max_duration", "1h")
	v.SetDefault("combat.remainder", string(combat.RemainderPrimary))
	v.SetDefault("combat.mitigation.strategy", "diminishing")
	v.SetDefault("combat.mitigation.script", "")
	v.SetDefault("combat.mitigation.instruction_limit", 100_000)
	v.SetDefault("combat.mitigation.armor_constant", 400.0)
	v.SetDefault("combat.mitigation.armor_level_scale", 85.0)
	v.SetDefault("combat.mitigation.resist_constant", 200.0)
	v.SetDefault("combat.mitigation.resist_level_scale", 25.0)
	v.SetDefault("combat.mitigation.max_reduction", 0.75)
	v.SetDefault("combat.mitigation.shield_multiplier", 1.5)

	v.SetDefault("live.speed", 1.0)
	v.SetDefault("live.idle_timeout", "10m")
	v.SetDefault("live.reap_interval", "30s")
	v.SetDefault("live.feed_buffer", 64)

	v.SetDefault("offline.check_every", 10_000)
	v.SetDefault("offline.wall_budget", "10s")
	v.SetDefault("offline.encounter_timeout", "5m")
	v.SetDefault("offline.respawn_delay", "5s")
	v.SetDefault("offline.expected", false)

	v.SetDefault("gameserver.grpc_host", "127.0.0.1")
	v.SetDefault("gameserver.grpc_port", 50051)

	v.SetDefault("content.dir", "")
}
