package combat

import (
	"fmt"
	"math"
)

// DamageType selects which mitigation stat applies to a hit.
type DamageType string

const (
	DamagePhysical DamageType = "physical"
	DamageMagic    DamageType = "magic"
	DamageTrue     DamageType = "true"
)

// Valid reports whether d is a known damage type.
func (d DamageType) Valid() bool {
	return d == DamagePhysical || d == DamageMagic || d == DamageTrue
}

// Mitigation maps an effective defense value to a damage reduction fraction.
// Implementations need not clamp; the Calculator clamps to [0, MaxReduction].
type Mitigation interface {
	Reduction(defense float64, level int, kind DamageType) (float64, error)
}

// MitigationConfig holds the constants of the diminishing-returns formula
// reduction = d / (d + Constant + LevelScale*level).
type MitigationConfig struct {
	ArmorConstant    float64
	ArmorLevelScale  float64
	ResistConstant   float64
	ResistLevelScale float64
	MaxReduction     float64
	ShieldMultiplier float64
}

// DefaultMitigationConfig returns the documented default constants.
func DefaultMitigationConfig() MitigationConfig {
	return MitigationConfig{
		ArmorConstant:    400,
		ArmorLevelScale:  85,
		ResistConstant:   200,
		ResistLevelScale: 25,
		MaxReduction:     0.75,
		ShieldMultiplier: 1.5,
	}
}

// Validate checks the constants.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidConfig.
func (m MitigationConfig) Validate() error {
	if m.ArmorConstant <= 0 || m.ResistConstant <= 0 {
		return fmt.Errorf("%w: mitigation constants must be > 0", ErrInvalidConfig)
	}
	if m.ArmorLevelScale < 0 || m.ResistLevelScale < 0 {
		return fmt.Errorf("%w: mitigation level scales must be >= 0", ErrInvalidConfig)
	}
	if m.MaxReduction < 0 || m.MaxReduction >= 1 {
		return fmt.Errorf("%w: max reduction must be in [0,1), got %g", ErrInvalidConfig, m.MaxReduction)
	}
	if m.ShieldMultiplier < 1 {
		return fmt.Errorf("%w: shield multiplier must be >= 1", ErrInvalidConfig)
	}
	return nil
}

// DiminishingReturns is the built-in Mitigation strategy.
type DiminishingReturns struct {
	Config MitigationConfig
}

// Reduction implements Mitigation.
func (d DiminishingReturns) Reduction(defense float64, level int, kind DamageType) (float64, error) {
	if defense <= 0 {
		return 0, nil
	}
	c, s := d.Config.ArmorConstant, d.Config.ArmorLevelScale
	if kind == DamageMagic {
		c, s = d.Config.ResistConstant, d.Config.ResistLevelScale
	}
	return defense / (defense + c + s*float64(level)), nil
}

// Defender is the mitigation profile of one target.
type Defender struct {
	Armor    float64
	Resist   float64
	Level    int
	Shielded bool
}

// Hit describes one damage instance before mitigation.
type Hit struct {
	Amount     int64
	Type       DamageType
	Crit       bool
	PenFlat    float64
	PenPct     float64
	Multiplier float64 // additional multiplier such as damage taken; 0 means 1
}

// Calculator turns raw hits into final damage.
type Calculator struct {
	cfg            MitigationConfig
	strategy       Mitigation
	critMultiplier float64
}

// NewCalculator builds a Calculator. A nil strategy selects DiminishingReturns.
//
// Precondition: cfg must have passed Validate; critMultiplier >= 1.
func NewCalculator(cfg MitigationConfig, strategy Mitigation, critMultiplier float64) *Calculator {
	if strategy == nil {
		strategy = DiminishingReturns{Config: cfg}
	}
	return &Calculator{cfg: cfg, strategy: strategy, critMultiplier: critMultiplier}
}

// CritMultiplier returns the default critical multiplier.
func (c *Calculator) CritMultiplier() float64 { return c.critMultiplier }

// EffectiveDefense applies penetration and the shield multiplier to the
// defender's stat for kind.
//
// Postcondition: Returns >= 0; returns 0 for true damage.
func (c *Calculator) EffectiveDefense(def Defender, kind DamageType, penFlat, penPct float64) float64 {
	var d float64
	switch kind {
	case DamagePhysical:
		d = def.Armor
	case DamageMagic:
		d = def.Resist
	default:
		return 0
	}
	d = d*(1-penPct) - penFlat
	if d < 0 {
		d = 0
	}
	if kind == DamagePhysical && def.Shielded {
		d *= c.cfg.ShieldMultiplier
	}
	return d
}

// Reduction returns the clamped reduction fraction for a hit of kind.
func (c *Calculator) Reduction(def Defender, kind DamageType, penFlat, penPct float64) (float64, error) {
	if kind == DamageTrue {
		return 0, nil
	}
	r, err := c.strategy.Reduction(c.EffectiveDefense(def, kind, penFlat, penPct), def.Level, kind)
	if err != nil {
		return 0, fmt.Errorf("mitigation: %w", err)
	}
	switch {
	case math.IsNaN(r) || r < 0:
		return 0, nil
	case r > c.cfg.MaxReduction:
		return c.cfg.MaxReduction, nil
	}
	return r, nil
}

// ComputeHit returns the final damage of hit against def. The value is
// rounded once, half away from zero, after mitigation and crit.
//
// Postcondition: Returns >= 0.
func (c *Calculator) ComputeHit(hit Hit, def Defender, critMultiplier float64) (int64, error) {
	if hit.Amount <= 0 {
		return 0, nil
	}
	r, err := c.Reduction(def, hit.Type, hit.PenFlat, hit.PenPct)
	if err != nil {
		return 0, err
	}
	v := float64(hit.Amount) * (1 - r)
	if hit.Multiplier > 0 {
		v *= hit.Multiplier
	}
	if hit.Crit {
		if critMultiplier <= 0 {
			critMultiplier = c.critMultiplier
		}
		v *= critMultiplier
	}
	out := int64(math.Round(v))
	if out < 0 {
		return 0, nil
	}
	return out, nil
}
