package combat

import (
	"fmt"
	"time"

	"github.com/cory-johannsen/idlebattle/internal/game/dice"
)

// TriggerKind selects when a proc is evaluated.
type TriggerKind string

const (
	TriggerOnHit  TriggerKind = "on_hit"
	TriggerOnCrit TriggerKind = "on_crit"
	TriggerRPPM   TriggerKind = "rppm"
)

// SourceKind classifies a direct hit.
type SourceKind string

const (
	SourceAny   SourceKind = "any"
	SourceBasic SourceKind = "basic"
	SourceSkill SourceKind = "skill"
)

// ProcAction is what a proc does when it fires. Exactly one of Effect or
// Damage is set.
type ProcAction struct {
	Effect     string     `yaml:"effect"`
	Damage     int64      `yaml:"damage"`
	DamageType DamageType `yaml:"damage_type"`
	Targeting  Targeting  `yaml:"targeting"`
}

// ProcDef is an immutable triggered-effect definition.
type ProcDef struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Trigger  TriggerKind   `yaml:"trigger"`
	Chance   float64       `yaml:"chance"`
	Rate     float64       `yaml:"rate"` // fires per minute, rppm only
	Cooldown time.Duration `yaml:"cooldown"`
	// PulseInterval overrides the engine pulse interval for rppm procs.
	PulseInterval time.Duration `yaml:"pulse_interval"`
	Source        SourceKind    `yaml:"source"`
	DamageTypes   []DamageType  `yaml:"damage_types"` // empty = any
	IncludeDots   bool          `yaml:"include_dots"`
	Action        ProcAction    `yaml:"action"`
}

// Validate checks the definition.
//
// Postcondition: Returns nil iff the trigger, filters and action are consistent.
func (p *ProcDef) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("proc: id must not be empty")
	}
	switch p.Trigger {
	case TriggerOnHit, TriggerOnCrit:
		if p.Chance < 0 {
			return fmt.Errorf("proc %q: chance must be >= 0", p.ID)
		}
	case TriggerRPPM:
		if p.Rate <= 0 {
			return fmt.Errorf("proc %q: rate must be > 0", p.ID)
		}
		if p.PulseInterval < 0 {
			return fmt.Errorf("proc %q: pulse_interval must be >= 0", p.ID)
		}
	default:
		return fmt.Errorf("proc %q: unknown trigger %q", p.ID, p.Trigger)
	}
	if p.Cooldown < 0 {
		return fmt.Errorf("proc %q: cooldown must be >= 0", p.ID)
	}
	switch p.Source {
	case "", SourceAny, SourceBasic, SourceSkill:
	default:
		return fmt.Errorf("proc %q: unknown source filter %q", p.ID, p.Source)
	}
	for _, dt := range p.DamageTypes {
		if !dt.Valid() {
			return fmt.Errorf("proc %q: unknown damage type %q", p.ID, dt)
		}
	}
	a := p.Action
	if (a.Effect == "") == (a.Damage <= 0) {
		return fmt.Errorf("proc %q: action must set exactly one of effect or damage", p.ID)
	}
	if a.Damage > 0 && !a.DamageType.Valid() {
		return fmt.Errorf("proc %q: unknown action damage type %q", p.ID, a.DamageType)
	}
	if err := a.Targeting.Validate(); err != nil {
		return fmt.Errorf("proc %q: %w", p.ID, err)
	}
	return nil
}

// pulseInterval returns the pulse interval, falling back to def.
func (p *ProcDef) pulseInterval(def time.Duration) time.Duration {
	if p.PulseInterval > 0 {
		return p.PulseInterval
	}
	return def
}

// HitEvent describes a direct hit for proc evaluation.
type HitEvent struct {
	Source SourceKind
	Type   DamageType
	Crit   bool
	Dot    bool
}

// ProcRuntime is the per-battle mutable state of one proc.
type ProcRuntime struct {
	DefID             string        `json:"id"`
	CooldownExpiresAt time.Duration `json:"cooldown_expires_at"`
	LastFiredAt       time.Duration `json:"last_fired_at"`
	Fires             int64         `json:"fires"`
}

// ready reports whether the proc is off cooldown at now.
func (r *ProcRuntime) ready(now time.Duration) bool {
	return r.Fires == 0 || now >= r.CooldownExpiresAt
}

// ProcRegistry holds the procs registered for one battle, in registration order.
type ProcRegistry struct {
	defs    []*ProcDef
	runtime []*ProcRuntime
	index   map[string]int
}

// NewProcRegistry creates an empty registry.
func NewProcRegistry() *ProcRegistry {
	return &ProcRegistry{index: make(map[string]int)}
}

// Register adds def. Registering an id twice is a no-op.
//
// Postcondition: Returns true iff def was added.
func (r *ProcRegistry) Register(def *ProcDef) bool {
	if _, ok := r.index[def.ID]; ok {
		return false
	}
	r.index[def.ID] = len(r.defs)
	r.defs = append(r.defs, def)
	r.runtime = append(r.runtime, &ProcRuntime{DefID: def.ID})
	return true
}

// Len returns the number of registered procs.
func (r *ProcRegistry) Len() int { return len(r.defs) }

// Def returns the definition registered under id.
func (r *ProcRegistry) Def(id string) (*ProcDef, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.defs[i], true
}

// Runtime returns the runtime state registered under id.
func (r *ProcRegistry) Runtime(id string) (*ProcRuntime, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.runtime[i], true
}

// Runtimes returns copies of every runtime state in registration order.
func (r *ProcRegistry) Runtimes() []ProcRuntime {
	out := make([]ProcRuntime, len(r.runtime))
	for i, rt := range r.runtime {
		out[i] = *rt
	}
	return out
}

// Periodic returns the rate-based definitions in registration order.
func (r *ProcRegistry) Periodic() []*ProcDef {
	var out []*ProcDef
	for _, d := range r.defs {
		if d.Trigger == TriggerRPPM {
			out = append(out, d)
		}
	}
	return out
}

// OnDirectHit evaluates every non-rate proc against ev and returns the ones
// that fire, in registration order. Each proc that passes its filters and is
// off cooldown draws exactly once from rng.
func (r *ProcRegistry) OnDirectHit(ev HitEvent, now time.Duration, rng *dice.Stream) []*ProcDef {
	var fired []*ProcDef
	for i, def := range r.defs {
		if def.Trigger == TriggerRPPM || !r.runtime[i].ready(now) {
			continue
		}
		if !matchesSource(def.Source, ev.Source) {
			continue
		}
		if ev.Dot && !def.IncludeDots {
			continue
		}
		if !matchesType(def.DamageTypes, ev.Type) {
			continue
		}
		if def.Trigger == TriggerOnCrit && !ev.Crit {
			continue
		}
		if rng.Chance(def.Chance) {
			fired = append(fired, def)
		}
	}
	return fired
}

// OnPulse evaluates the rate-based proc id for a pulse covering interval.
//
// Postcondition: Draws once iff the proc is registered, rate-based and off cooldown.
func (r *ProcRegistry) OnPulse(id string, now, interval time.Duration, rng *dice.Stream) bool {
	i, ok := r.index[id]
	if !ok || r.defs[i].Trigger != TriggerRPPM || !r.runtime[i].ready(now) {
		return false
	}
	return rng.Chance(PulseProbability(r.defs[i].Rate, interval))
}

// MarkFired records a fire of id at now and starts its cooldown.
func (r *ProcRegistry) MarkFired(id string, now time.Duration) {
	i, ok := r.index[id]
	if !ok {
		return
	}
	rt := r.runtime[i]
	rt.Fires++
	rt.LastFiredAt = now
	if cd := r.defs[i].Cooldown; cd > 0 {
		rt.CooldownExpiresAt = now + cd
	}
}

// PulseProbability converts a per-minute rate into a per-pulse probability.
//
// Postcondition: Returns rate × interval/60s clamped to [0,1].
func PulseProbability(rate float64, interval time.Duration) float64 {
	return dice.Clamp01(rate * interval.Seconds() / 60)
}

func matchesSource(filter, src SourceKind) bool {
	return filter == "" || filter == SourceAny || filter == src
}

func matchesType(filter []DamageType, dt DamageType) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == dt {
			return true
		}
	}
	return false
}
