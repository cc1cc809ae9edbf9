// Package condition defines the status effects procs can apply during a
// battle and tracks which of them are active on a bearer.
package condition

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Effect bearers.
const (
	TargetSelf  = "self"
	TargetEnemy = "enemy"
)

// EffectDef is the static definition of a status effect, loaded from YAML.
type EffectDef struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Target      string        `yaml:"target"`    // "self" | "enemy"
	Duration    time.Duration `yaml:"duration"`  // 0 = until battle end
	MaxStacks   int           `yaml:"max_stacks"` // 0 = unstackable
	// HastePct is added to the bearer's haste per stack (self effects).
	HastePct float64 `yaml:"haste_pct"`
	// DamagePct increases outgoing damage per stack (self effects).
	DamagePct float64 `yaml:"damage_pct"`
	// DamageTakenPct increases damage taken per stack (enemy effects).
	DamageTakenPct float64 `yaml:"damage_taken_pct"`
	// TickDamage > 0 makes the effect a damage-over-time on its bearer.
	TickDamage   int64         `yaml:"tick_damage"`
	TickInterval time.Duration `yaml:"tick_interval"`
	DamageType   string        `yaml:"damage_type"`
}

// IsDot reports whether the effect deals periodic damage.
func (d *EffectDef) IsDot() bool {
	return d.TickDamage > 0 && d.TickInterval > 0
}

// Validate checks the definition invariants.
//
// Postcondition: Returns nil iff ID is non-empty, Target is self or enemy,
// durations are non-negative and a DoT targets the enemy with a positive
// tick interval.
func (d *EffectDef) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("effect: id must not be empty")
	}
	if d.Target != TargetSelf && d.Target != TargetEnemy {
		return fmt.Errorf("effect %q: target must be %q or %q, got %q", d.ID, TargetSelf, TargetEnemy, d.Target)
	}
	if d.Duration < 0 {
		return fmt.Errorf("effect %q: duration must be >= 0", d.ID)
	}
	if d.MaxStacks < 0 {
		return fmt.Errorf("effect %q: max_stacks must be >= 0", d.ID)
	}
	if d.TickDamage > 0 && d.TickInterval <= 0 {
		return fmt.Errorf("effect %q: tick_interval must be > 0 when tick_damage is set", d.ID)
	}
	switch d.DamageType {
	case "", "physical", "magic", "true":
	default:
		return fmt.Errorf("effect %q: unknown damage_type %q", d.ID, d.DamageType)
	}
	if d.TickDamage > 0 && d.Target != TargetEnemy {
		return fmt.Errorf("effect %q: damage over time must target %q", d.ID, TargetEnemy)
	}
	return nil
}

// Registry holds all known EffectDefs keyed by ID.
type Registry struct {
	defs map[string]*EffectDef
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*EffectDef)}
}

// Register adds def to the registry, overwriting any existing entry with the same ID.
//
// Precondition: def must not be nil and def.ID must not be empty.
func (r *Registry) Register(def *EffectDef) {
	r.defs[def.ID] = def
}

// Get returns the EffectDef for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*EffectDef, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.defs[id]
	return d, ok
}

// All returns the registered definitions sorted by ID.
func (r *Registry) All() []*EffectDef {
	out := make([]*EffectDef, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDirectory reads every *.yaml file in dir as one EffectDef.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a populated Registry, or an error naming the first
// file that fails to parse or validate.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading effect dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def EffectDef
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("validating %q: %w", path, err)
		}
		reg.Register(&def)
	}
	return reg, nil
}
