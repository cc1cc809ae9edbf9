package combat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/game/condition"
	"github.com/cory-johannsen/idlebattle/internal/game/dice"
)

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// EngineParams are the Config values that change simulation output. A
// snapshot only restores under identical parameters.
type EngineParams struct {
	CritMultiplier float64          `json:"crit_multiplier"`
	HasteFloor     float64          `json:"haste_floor"`
	SegmentWindow  time.Duration    `json:"segment_window"`
	PulseInterval  time.Duration    `json:"pulse_interval"`
	MaxDuration    time.Duration    `json:"max_duration"`
	Remainder      RemainderPolicy  `json:"remainder"`
	Mitigation     MitigationConfig `json:"mitigation"`
	RetainSegments bool             `json:"retain_segments"`
}

func paramsOf(cfg Config) EngineParams {
	return EngineParams{
		CritMultiplier: cfg.CritMultiplier,
		HasteFloor:     cfg.HasteFloor,
		SegmentWindow:  cfg.SegmentWindow,
		PulseInterval:  cfg.PulseInterval,
		MaxDuration:    cfg.MaxDuration,
		Remainder:      cfg.Remainder,
		Mitigation:     cfg.Mitigation,
		RetainSegments: cfg.RetainSegments,
	}
}

// EffectState is the serialized form of one active effect.
type EffectState struct {
	ID         string        `json:"id"`
	Stacks     int           `json:"stacks"`
	AppliedAt  time.Duration `json:"applied_at"`
	ExpiresAt  time.Duration `json:"expires_at"`
	Generation uint64        `json:"generation"`
	TickChain  uint64        `json:"tick_chain"`
}

// TrackState is the serialized form of one track.
type TrackState struct {
	Category    string        `json:"category"`
	NextReadyAt time.Duration `json:"next_ready_at"`
	Haste       float64       `json:"haste"`
}

// TargetState is the serialized form of one group member.
type TargetState struct {
	HP      int64         `json:"hp"`
	DiedAt  time.Duration `json:"died_at"`
	Effects []EffectState `json:"effects,omitempty"`
}

// Snapshot captures everything needed to continue a battle.
type Snapshot struct {
	Version    int           `json:"version"`
	Params     EngineParams  `json:"params"`
	Input      Input         `json:"input"`
	RNGCounter uint64        `json:"rng_counter"`
	Clock      time.Duration `json:"clock"`
	Seq        uint64        `json:"seq"`
	State      State         `json:"state"`
	Generation uint64        `json:"generation"`
	Kills      int           `json:"kills"`
	Overkill   int64         `json:"overkill"`
	KillTime   time.Duration `json:"kill_time"`
	Tracks     []TrackState  `json:"tracks"`
	Procs      []ProcRuntime `json:"procs"`
	Self       []EffectState `json:"self_effects,omitempty"`
	Targets    []TargetState `json:"targets"`
	Pending    []Action      `json:"pending"`
	Recorder   recorderState `json:"recorder"`
}

func effectStates(set *condition.ActiveSet) []EffectState {
	var out []EffectState
	for _, ac := range set.All() {
		out = append(out, EffectState{
			ID:         ac.Def.ID,
			Stacks:     ac.Stacks,
			AppliedAt:  ac.AppliedAt,
			ExpiresAt:  ac.ExpiresAt,
			Generation: ac.Generation,
			TickChain:  ac.TickChain,
		})
	}
	return out
}

// Snapshot captures the battle. A running battle is marked paused.
//
// Postcondition: Restore of the returned bytes under the same Catalog and
// Config continues identically to this battle.
func (b *Battle) Snapshot() ([]byte, error) {
	if b.state == StateFailed {
		return nil, fmt.Errorf("snapshot of failed battle: %w", b.err)
	}
	b.Pause()
	snap := Snapshot{
		Version:    SnapshotVersion,
		Params:     paramsOf(b.cfg),
		Input:      b.input,
		RNGCounter: b.rng.Counter(),
		Clock:      b.clock,
		Seq:        b.queue.Seq(),
		State:      b.state,
		Generation: b.gen,
		Kills:      b.kills,
		Overkill:   b.overkill,
		KillTime:   b.killTime,
		Procs:      b.procs.Runtimes(),
		Self:       effectStates(b.self),
		Pending:    b.queue.Pending(),
		Recorder:   b.recorder.state(),
	}
	for _, t := range b.tracks {
		snap.Tracks = append(snap.Tracks, TrackState{Category: t.Category, NextReadyAt: t.NextReadyAt, Haste: t.Haste()})
	}
	for _, t := range b.targets {
		snap.Targets = append(snap.Targets, TargetState{HP: t.HP, DiedAt: t.DiedAt, Effects: effectStates(t.Effects)})
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// Restore rebuilds a battle from Snapshot output. Content is re-resolved from
// catalog by id.
//
// Postcondition: Returns a battle in the captured state (a running battle
// comes back paused), or an error wrapping ErrResumeMismatch. No partial
// restoration is attempted.
func Restore(data []byte, catalog Catalog, cfg Config, logger *zap.Logger) (*Battle, error) {
	var snap Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decoding: %v", ErrResumeMismatch, err)
	}
	b, err := restore(snap, catalog, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResumeMismatch, err)
	}
	return b, nil
}

func restore(snap Snapshot, catalog Catalog, cfg Config, logger *zap.Logger) (*Battle, error) {
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("version %d, want %d", snap.Version, SnapshotVersion)
	}
	if snap.Params != paramsOf(cfg) {
		return nil, fmt.Errorf("engine parameters differ from configuration")
	}
	switch snap.State {
	case StateCreated, StateRunning, StatePaused, StateCompleted, StateCancelled:
	default:
		return nil, fmt.Errorf("state %d is not restorable", snap.State)
	}
	b, err := build(snap.Input, catalog, cfg, logger)
	if err != nil {
		return nil, err
	}

	if len(snap.Tracks) != len(b.tracks) {
		return nil, fmt.Errorf("%d tracks, profession defines %d", len(snap.Tracks), len(b.tracks))
	}
	for i, ts := range snap.Tracks {
		t := b.tracks[i]
		if ts.Category != t.Category || ts.Haste < cfg.HasteFloor || ts.NextReadyAt < 0 {
			return nil, fmt.Errorf("track %d is inconsistent", i)
		}
		t.SetHaste(ts.Haste)
		t.NextReadyAt = ts.NextReadyAt
	}

	if len(snap.Procs) != b.procs.Len() {
		return nil, fmt.Errorf("%d proc states, battle registers %d", len(snap.Procs), b.procs.Len())
	}
	for i, ps := range snap.Procs {
		rt := b.procs.runtime[i]
		if ps.DefID != rt.DefID || ps.Fires < 0 {
			return nil, fmt.Errorf("proc state %d (%q) does not match %q", i, ps.DefID, rt.DefID)
		}
		*rt = ps
	}

	if err := restoreEffects(b.self, snap.Self, catalog, snap.Generation); err != nil {
		return nil, fmt.Errorf("self effects: %w", err)
	}
	if len(snap.Targets) != len(b.targets) {
		return nil, fmt.Errorf("%d targets, input has %d", len(snap.Targets), len(b.targets))
	}
	dead := 0
	for i, ts := range snap.Targets {
		t := b.targets[i]
		if ts.HP < 0 || ts.HP > t.MaxHP {
			return nil, fmt.Errorf("target %d hp %d outside [0, %d]", i, ts.HP, t.MaxHP)
		}
		t.HP, t.DiedAt = ts.HP, ts.DiedAt
		if !t.Alive() {
			dead++
		}
		if err := restoreEffects(t.Effects, ts.Effects, catalog, snap.Generation); err != nil {
			return nil, fmt.Errorf("target %d effects: %w", i, err)
		}
	}
	if dead != snap.Kills {
		return nil, fmt.Errorf("kills %d but %d targets dead", snap.Kills, dead)
	}

	for _, a := range snap.Pending {
		if a.At < snap.Clock {
			return nil, fmt.Errorf("pending action %d at %s precedes clock %s", a.Seq, a.At, snap.Clock)
		}
		if (a.Kind == ActionAttackFire || a.Kind == ActionSpecialFire) && a.Track >= len(b.tracks) {
			return nil, fmt.Errorf("pending action %d references track %d", a.Seq, a.Track)
		}
		if a.Kind == ActionProcPulse {
			if def, ok := b.procs.Def(a.Ref); !ok || def.Trigger != TriggerRPPM {
				return nil, fmt.Errorf("pending pulse references proc %q", a.Ref)
			}
		}
	}
	q, err := restoreQueue(snap.Pending, snap.Seq)
	if err != nil {
		return nil, err
	}
	rec, err := restoreRecorder(snap.Recorder)
	if err != nil {
		return nil, err
	}
	if rec.window != cfg.SegmentWindow || rec.retain != cfg.RetainSegments {
		return nil, fmt.Errorf("recorder settings differ from configuration")
	}

	b.rng = dice.RestoreStream(snap.Input.Seed, snap.RNGCounter)
	b.clock = snap.Clock
	b.state = snap.State
	if b.state == StateRunning {
		b.state = StatePaused
	}
	b.gen = snap.Generation
	b.kills = snap.Kills
	b.overkill = snap.Overkill
	b.killTime = snap.KillTime
	b.queue = q
	b.recorder = rec
	b.logger.Debug("battle restored", zap.Duration("clock", b.clock), zap.Int("pending", q.Len()))
	return b, nil
}

func restoreEffects(set *condition.ActiveSet, states []EffectState, catalog Catalog, maxGen uint64) error {
	for _, es := range states {
		def, ok := catalog.Effect(es.ID)
		if !ok {
			return fmt.Errorf("unknown effect %q", es.ID)
		}
		if es.Stacks < 1 || es.Generation == 0 || es.Generation > maxGen || es.TickChain > es.Generation {
			return fmt.Errorf("effect %q is inconsistent", es.ID)
		}
		set.Restore(&condition.Active{
			Def:        def,
			Stacks:     es.Stacks,
			AppliedAt:  es.AppliedAt,
			ExpiresAt:  es.ExpiresAt,
			Generation: es.Generation,
			TickChain:  es.TickChain,
		})
	}
	return nil
}
