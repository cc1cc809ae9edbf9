package combat

import (
	"math"
	"time"
)

// Track categories.
const (
	CategoryBasic   = "basic"
	CategorySpecial = "special"
)

// HasteFactor converts a haste percentage into an interval divisor.
//
// Postcondition: Returns max(floor, 1 + pct/100).
func HasteFactor(pct, floor float64) float64 {
	f := 1 + pct/100
	if f < floor {
		return floor
	}
	return f
}

// Track times one action category. Its cadence is Base / haste.
//
// Invariant: Base > 0 and the haste factor is >= the floor it was built with.
type Track struct {
	Category    string
	Base        time.Duration
	NextReadyAt time.Duration
	haste       float64
	floor       float64
}

// NewTrack creates a track that is first ready at t=0.
//
// Precondition: base > 0; floor > 0.
func NewTrack(category string, base time.Duration, haste, floor float64) *Track {
	t := &Track{Category: category, Base: base, floor: floor}
	t.SetHaste(haste)
	return t
}

// Haste returns the current clamped haste factor.
func (t *Track) Haste() float64 { return t.haste }

// SetHaste replaces the haste factor. The pending NextReadyAt is left
// untouched; the new interval applies from the next fire onward.
func (t *Track) SetHaste(factor float64) {
	if factor < t.floor {
		factor = t.floor
	}
	t.haste = factor
}

// Interval returns the effective interval, Base / haste, rounded to the
// nearest nanosecond and never below one nanosecond.
func (t *Track) Interval() time.Duration {
	d := time.Duration(math.Round(float64(t.Base) / t.haste))
	if d < 1 {
		return 1
	}
	return d
}

// Advance fires the track if it is ready at now.
//
// Postcondition: When ready is true, NextReadyAt == next == now + Interval().
// When ready is false the track is unchanged.
func (t *Track) Advance(now time.Duration) (ready bool, next time.Duration) {
	if now < t.NextReadyAt {
		return false, t.NextReadyAt
	}
	t.NextReadyAt = now + t.Interval()
	return true, t.NextReadyAt
}
