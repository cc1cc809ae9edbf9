package condition

import (
	"fmt"
	"sort"
	"time"
)

// Active tracks one applied effect on a bearer.
type Active struct {
	Def       *EffectDef
	Stacks    int
	AppliedAt time.Duration
	// ExpiresAt is the simulated time the effect ends; 0 means it never expires.
	ExpiresAt time.Duration
	// Generation changes on every application; an expiry scheduled for an
	// older generation is stale.
	Generation uint64
	// TickChain identifies the running DoT tick chain; it survives refreshes.
	TickChain uint64
}

// Application reports the outcome of ActiveSet.Apply.
type Application struct {
	Generation uint64
	ExpiresAt  time.Duration
	// Fresh is true when the effect was not active before this application.
	Fresh bool
}

// ActiveSet tracks all effects currently applied to one bearer.
// It is not safe for concurrent use; the owning battle serialises access.
type ActiveSet struct {
	effects map[string]*Active
}

// NewActiveSet creates an empty ActiveSet.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{effects: make(map[string]*Active)}
}

// Apply adds or refreshes def at now using generation as the new application id.
// Re-applying increments stacks (capped at MaxStacks; unstackable stays at 1)
// and restarts the duration from now.
//
// Precondition: def must not be nil; generation must be unique per battle.
func (s *ActiveSet) Apply(def *EffectDef, now time.Duration, generation uint64) (Application, error) {
	if def == nil {
		return Application{}, fmt.Errorf("Apply: def must not be nil")
	}
	var expires time.Duration
	if def.Duration > 0 {
		expires = now + def.Duration
	}

	if existing, ok := s.effects[def.ID]; ok {
		if def.MaxStacks > 0 && existing.Stacks < def.MaxStacks {
			existing.Stacks++
		}
		existing.ExpiresAt = expires
		existing.Generation = generation
		return Application{Generation: generation, ExpiresAt: expires}, nil
	}

	s.effects[def.ID] = &Active{
		Def:        def,
		Stacks:     1,
		AppliedAt:  now,
		ExpiresAt:  expires,
		Generation: generation,
		TickChain:  generation,
	}
	return Application{Generation: generation, ExpiresAt: expires, Fresh: true}, nil
}

// Expire removes id if its current generation matches.
//
// Postcondition: Returns true iff the effect was removed.
func (s *ActiveSet) Expire(id string, generation uint64) bool {
	ac, ok := s.effects[id]
	if !ok || ac.Generation != generation {
		return false
	}
	delete(s.effects, id)
	return true
}

// Remove deletes id unconditionally. Removing an absent effect is a no-op.
func (s *ActiveSet) Remove(id string) {
	delete(s.effects, id)
}

// Get returns the active effect with id.
func (s *ActiveSet) Get(id string) (*Active, bool) {
	ac, ok := s.effects[id]
	return ac, ok
}

// Has reports whether id is currently active.
func (s *ActiveSet) Has(id string) bool {
	_, ok := s.effects[id]
	return ok
}

// Stacks returns the current stack count for id, or 0 if not present.
func (s *ActiveSet) Stacks(id string) int {
	if ac, ok := s.effects[id]; ok {
		return ac.Stacks
	}
	return 0
}

// Len returns the number of active effects.
func (s *ActiveSet) Len() int { return len(s.effects) }

// All returns the active effects ordered by effect ID.
// The pointed-to values are shared; callers must not modify them.
func (s *ActiveSet) All() []*Active {
	out := make([]*Active, 0, len(s.effects))
	for _, ac := range s.effects {
		out = append(out, ac)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Def.ID < out[j].Def.ID })
	return out
}

// Restore inserts ac verbatim. Used when rebuilding a set from a snapshot.
//
// Precondition: ac.Def must not be nil.
func (s *ActiveSet) Restore(ac *Active) {
	s.effects[ac.Def.ID] = ac
}
