// Package combat implements the deterministic event-driven battle engine for
// idle encounters: timing tracks, the damage calculator, the proc engine, the
// action scheduler and the segment recorder.
package combat

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig is returned when a battle cannot be constructed from its input.
	ErrInvalidConfig = errors.New("invalid battle configuration")
	// ErrDeterminism is returned when the engine detects an internal ordering violation.
	ErrDeterminism = errors.New("determinism violation")
	// ErrResumeMismatch is returned when a snapshot cannot be restored to a continuable battle.
	ErrResumeMismatch = errors.New("snapshot does not match a continuable battle")
)

// State is the lifecycle state of a Battle.
type State int

const (
	StateCreated State = iota
	StateRunning
	StatePaused
	StateCompleted
	StateCancelled
	StateFailed
)

// String returns a human-readable state label.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further actions will ever execute.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// LimitMode selects the stop condition of a battle.
type LimitMode string

const (
	LimitDuration  LimitMode = "duration"
	LimitEvents    LimitMode = "events"
	LimitKills     LimitMode = "kills"
	LimitUnbounded LimitMode = "unbounded"
)

// Limit is the stop condition of a battle. Every mode also stops when the
// whole enemy group is defeated.
type Limit struct {
	Mode      LimitMode     `json:"mode"`
	Duration  time.Duration `json:"duration,omitempty"`
	MaxEvents int64         `json:"max_events,omitempty"`
	MaxKills  int           `json:"max_kills,omitempty"`
}

// Validate checks the limit against the enemy group size.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidConfig.
func (l Limit) Validate(enemyCount int) error {
	switch l.Mode {
	case LimitDuration:
		if l.Duration <= 0 {
			return fmt.Errorf("%w: duration must be > 0, got %s", ErrInvalidConfig, l.Duration)
		}
	case LimitEvents:
		if l.MaxEvents <= 0 {
			return fmt.Errorf("%w: max_events must be > 0, got %d", ErrInvalidConfig, l.MaxEvents)
		}
	case LimitKills:
		if l.MaxKills <= 0 || l.MaxKills > enemyCount {
			return fmt.Errorf("%w: max_kills must be in [1, %d], got %d", ErrInvalidConfig, enemyCount, l.MaxKills)
		}
	case LimitUnbounded:
	default:
		return fmt.Errorf("%w: unknown limit mode %q", ErrInvalidConfig, l.Mode)
	}
	return nil
}

// end returns the simulated time at which the run window closes.
func (l Limit) end(maxDuration time.Duration) time.Duration {
	if l.Mode == LimitDuration {
		return l.Duration
	}
	return maxDuration
}

// ForDuration returns a fixed-duration limit.
func ForDuration(d time.Duration) Limit { return Limit{Mode: LimitDuration, Duration: d} }

// Stats are a character's resolved combat statistics.
type Stats struct {
	AttackPower    float64 `yaml:"attack_power" json:"attack_power"`
	SpellPower     float64 `yaml:"spell_power" json:"spell_power"`
	CritChance     float64 `yaml:"crit_chance" json:"crit_chance"`         // [0,1]
	CritMultiplier float64 `yaml:"crit_multiplier" json:"crit_multiplier"` // 0 = config default
	HastePct       float64 `yaml:"haste_pct" json:"haste_pct"`
	ArmorPenFlat   float64 `yaml:"armor_pen_flat" json:"armor_pen_flat"`
	ArmorPenPct    float64 `yaml:"armor_pen_pct" json:"armor_pen_pct"` // [0,1]
	Armor          float64 `yaml:"armor" json:"armor"`
	Level          int     `yaml:"level" json:"level"`
}

// Validate checks the stat ranges.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidConfig.
func (s Stats) Validate() error {
	if s.AttackPower < 0 || s.SpellPower < 0 {
		return fmt.Errorf("%w: power must be >= 0", ErrInvalidConfig)
	}
	if s.CritChance < 0 || s.CritChance > 1 {
		return fmt.Errorf("%w: crit_chance must be in [0,1], got %g", ErrInvalidConfig, s.CritChance)
	}
	if s.CritMultiplier < 0 {
		return fmt.Errorf("%w: crit_multiplier must be >= 0", ErrInvalidConfig)
	}
	if s.ArmorPenPct < 0 || s.ArmorPenPct > 1 {
		return fmt.Errorf("%w: armor_pen_pct must be in [0,1], got %g", ErrInvalidConfig, s.ArmorPenPct)
	}
	if s.ArmorPenFlat < 0 {
		return fmt.Errorf("%w: armor_pen_flat must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Input fully describes a battle. Content is referenced by id and resolved
// from a Catalog when the battle is constructed or restored.
type Input struct {
	Stats        Stats    `json:"stats"`
	ProfessionID string   `json:"profession"`
	EnemyID      string   `json:"enemy"`
	EnemyCount   int      `json:"enemy_count"`
	Procs        []string `json:"procs,omitempty"`
	Seed         uint64   `json:"seed"`
	Limit        Limit    `json:"limit"`
}

// Config holds engine tuning shared by every battle.
type Config struct {
	CritMultiplier float64
	HasteFloor     float64
	SegmentWindow  time.Duration
	PulseInterval  time.Duration
	MaxDuration    time.Duration
	Remainder      RemainderPolicy
	Mitigation     MitigationConfig
	// Strategy overrides the diminishing-returns formula built from Mitigation.
	Strategy Mitigation
	// RetainSegments keeps closed segments; disabled for offline settlement.
	RetainSegments bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		CritMultiplier: 2.0,
		HasteFloor:     0.01,
		SegmentWindow:  time.Second,
		PulseInterval:  time.Second,
		MaxDuration:    time.Hour,
		Remainder:      RemainderPrimary,
		Mitigation:     DefaultMitigationConfig(),
		RetainSegments: true,
	}
}

// Validate checks the configuration invariants.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidConfig.
func (c Config) Validate() error {
	if c.CritMultiplier < 1 {
		return fmt.Errorf("%w: crit multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.HasteFloor <= 0 {
		return fmt.Errorf("%w: haste floor must be > 0", ErrInvalidConfig)
	}
	if c.SegmentWindow <= 0 || c.PulseInterval <= 0 || c.MaxDuration <= 0 {
		return fmt.Errorf("%w: segment window, pulse interval and max duration must be > 0", ErrInvalidConfig)
	}
	if c.Remainder != RemainderPrimary && c.Remainder != RemainderRoundRobin {
		return fmt.Errorf("%w: unknown remainder policy %q", ErrInvalidConfig, c.Remainder)
	}
	return c.Mitigation.Validate()
}
