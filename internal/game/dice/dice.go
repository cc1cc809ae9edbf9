// Package dice provides the seeded randomness behind every battle and the
// dice-expression rolls used by reward tables.
//
// All draws made while a battle runs come from one Stream owned by that
// battle. A Stream is a pure function of (seed, counter): restoring both
// reproduces every subsequent value.
package dice

import (
	"fmt"
	"strings"
)

// RollResult holds the audit trail for a single dice expression evaluation.
//
// Postcondition: Total() == sum(Dice) + Modifier.
type RollResult struct {
	Expression string // original expression string, e.g. "2d6+3"
	Dice       []int  // kept die results before modifier
	Modifier   int    // flat modifier (may be negative)
}

// Total returns the sum of all kept die results plus the modifier.
func (r RollResult) Total() int {
	total := r.Modifier
	for _, d := range r.Dice {
		total += d
	}
	return total
}

// String renders the roll as "2d6+3 = [4 5] +3 = 12".
func (r RollResult) String() string {
	parts := make([]string, len(r.Dice))
	for i, d := range r.Dice {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("%s = [%s] %+d = %d", r.Expression, strings.Join(parts, " "), r.Modifier, r.Total())
}

// Source is the randomness provider for rolls and chance checks.
//
// Implementations are not required to be safe for concurrent use; a Source
// belongs to exactly one battle or settlement.
type Source interface {
	// Intn returns a non-negative int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
	// Float64 returns a float in [0, 1).
	Float64() float64
}
