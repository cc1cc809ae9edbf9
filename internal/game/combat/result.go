package combat

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Result summarizes a battle. It is partial for a cancelled or non-terminal
// battle; for the latter its last segment is a provisional copy of the open
// window.
type Result struct {
	Segments       []Segment        `json:"segments"`
	TotalDamage    int64            `json:"total_damage"`
	DamageBySource map[string]int64 `json:"damage_by_source,omitempty"`
	Events         int64            `json:"events"`
	Killed         bool             `json:"killed"`
	Kills          int              `json:"kills"`
	KillTime       time.Duration    `json:"kill_time"`
	Overkill       int64            `json:"overkill"`
	Elapsed        time.Duration    `json:"elapsed"`
	State          State            `json:"state"`
	Partial        bool             `json:"partial"`
}

// Status is the pollable progress of a battle.
type Status struct {
	Elapsed     time.Duration `json:"elapsed"`
	Target      time.Duration `json:"target"`
	State       State         `json:"state"`
	Completed   bool          `json:"completed"`
	Killed      bool          `json:"killed"`
	Kills       int           `json:"kills"`
	TotalDamage int64         `json:"total_damage"`
	Events      int64         `json:"events"`
}

// Result returns the battle's result at the current point.
func (b *Battle) Result() Result {
	totals := b.recorder.Totals()
	r := Result{
		Segments:       b.recorder.ReadSince(0),
		TotalDamage:    totals.Damage,
		DamageBySource: totals.DamageBySource,
		Events:         totals.Events,
		Killed:         b.defeated(),
		Kills:          b.kills,
		Overkill:       b.overkill,
		Elapsed:        b.clock,
		State:          b.state,
		Partial:        !b.state.Terminal() || b.state == StateCancelled,
	}
	if r.Killed {
		r.KillTime = b.killTime
	}
	if !b.state.Terminal() {
		if seg, ok := b.recorder.Provisional(b.clock); ok {
			r.Segments = append(r.Segments, seg)
		}
	}
	return r
}

// Status returns the current progress.
func (b *Battle) Status() Status {
	totals := b.recorder.totals
	return Status{
		Elapsed:     b.clock,
		Target:      b.end,
		State:       b.state,
		Completed:   b.state.Terminal(),
		Killed:      b.defeated(),
		Kills:       b.kills,
		TotalDamage: totals.Damage,
		Events:      totals.Events,
	}
}

// Run builds a battle and runs it to a terminal condition.
//
// Postcondition: On a configuration error no battle runs and the zero Result
// is returned. Cancellation yields a partial result in StateCancelled and a
// nil error.
func Run(ctx context.Context, input Input, catalog Catalog, cfg Config, logger *zap.Logger) (Result, error) {
	b, err := NewBattle(input, catalog, cfg, logger)
	if err != nil {
		return Result{}, err
	}
	if err := b.Advance(ctx, Budget{}); err != nil {
		return b.Result(), err
	}
	return b.Result(), nil
}
