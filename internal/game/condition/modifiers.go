package condition

// HastePct returns the total haste percentage granted by active effects.
// Effects are summed in ID order so the float result is reproducible.
func HastePct(s *ActiveSet) float64 {
	if s == nil {
		return 0
	}
	total := 0.0
	for _, ac := range s.All() {
		total += ac.Def.HastePct * float64(ac.Stacks)
	}
	return total
}

// DamageMultiplier returns the outgoing damage multiplier from active effects.
//
// Postcondition: Returns 1 + sum(DamagePct*Stacks)/100, floored at 0.
func DamageMultiplier(s *ActiveSet) float64 {
	return multiplier(s, func(d *EffectDef) float64 { return d.DamagePct })
}

// DamageTakenMultiplier returns the incoming damage multiplier on the bearer.
//
// Postcondition: Returns 1 + sum(DamageTakenPct*Stacks)/100, floored at 0.
func DamageTakenMultiplier(s *ActiveSet) float64 {
	return multiplier(s, func(d *EffectDef) float64 { return d.DamageTakenPct })
}

func multiplier(s *ActiveSet, pct func(*EffectDef) float64) float64 {
	if s == nil {
		return 1
	}
	total := 0.0
	for _, ac := range s.All() {
		total += pct(ac.Def) * float64(ac.Stacks)
	}
	m := 1 + total/100
	if m < 0 {
		return 0
	}
	return m
}
