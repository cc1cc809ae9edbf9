package combat

import (
	"fmt"
	"time"
)

// Power scalings.
const (
	ScalingAttack = "attack"
	ScalingSpell  = "spell"
)

// TrackDef describes one timed action of a profession.
type TrackDef struct {
	Interval    time.Duration `yaml:"interval"`
	Coefficient float64       `yaml:"coefficient"`
	Scaling     string        `yaml:"scaling"` // "attack" | "spell"
	DamageType  DamageType    `yaml:"damage_type"`
	Targeting   Targeting     `yaml:"targeting"`
}

// Validate checks the definition.
func (d *TrackDef) Validate() error {
	if d.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if d.Coefficient < 0 {
		return fmt.Errorf("coefficient must be >= 0")
	}
	if d.Scaling != ScalingAttack && d.Scaling != ScalingSpell {
		return fmt.Errorf("scaling must be %q or %q, got %q", ScalingAttack, ScalingSpell, d.Scaling)
	}
	if !d.DamageType.Valid() {
		return fmt.Errorf("unknown damage type %q", d.DamageType)
	}
	return d.Targeting.Validate()
}

// RawDamage returns power × coefficient for stats.
func (d *TrackDef) RawDamage(s Stats) float64 {
	if d.Scaling == ScalingSpell {
		return s.SpellPower * d.Coefficient
	}
	return s.AttackPower * d.Coefficient
}

// Profession defines the timed actions and innate procs of a character class.
type Profession struct {
	ID      string    `yaml:"id"`
	Name    string    `yaml:"name"`
	Basic   TrackDef  `yaml:"basic"`
	Special *TrackDef `yaml:"special"`
	Procs   []string  `yaml:"procs"`
}

// Validate checks the profession and its tracks.
//
// Postcondition: Returns nil iff ID is non-empty and every track is valid.
func (p *Profession) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("profession: id must not be empty")
	}
	if err := p.Basic.Validate(); err != nil {
		return fmt.Errorf("profession %q basic: %w", p.ID, err)
	}
	if p.Special != nil {
		if err := p.Special.Validate(); err != nil {
			return fmt.Errorf("profession %q special: %w", p.ID, err)
		}
	}
	return nil
}

// trackDefs returns the profession's tracks in scheduling order.
func (p *Profession) trackDefs() []*TrackDef {
	out := []*TrackDef{&p.Basic}
	if p.Special != nil {
		out = append(out, p.Special)
	}
	return out
}
