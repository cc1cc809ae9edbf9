package combat

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/game/condition"
)

// Budget bounds one Advance call without ending the battle. The zero value
// is unbounded.
type Budget struct {
	// Until stops before the first action scheduled after this simulated
	// time; the clock is moved to Until. An Until short of the battle end
	// never completes the battle. Ignored when <= 0.
	Until time.Duration
	// Events stops once this many events were recorded by the call. Ignored when <= 0.
	Events int64
}

// Advance runs the loop until a terminal condition or the budget is exhausted.
// Cancellation of ctx is checked between actions and ends the battle in
// StateCancelled without an error.
//
// Postcondition: Returns nil unless the battle is (or becomes) StateFailed,
// in which case the error wraps ErrDeterminism or a mitigation failure.
func (b *Battle) Advance(ctx context.Context, budget Budget) error {
	switch b.state {
	case StateCompleted, StateCancelled:
		return nil
	case StateFailed:
		return b.err
	case StateCreated, StatePaused:
		b.state = StateRunning
	}

	startEvents := b.recorder.totals.Events
	for {
		if ctx.Err() != nil {
			b.finish(StateCancelled, b.clock)
			return nil
		}
		next, ok := b.queue.Peek()
		if !ok {
			b.finish(StateCompleted, b.clock)
			return nil
		}
		if budget.Until > 0 && budget.Until < b.end && next.At > budget.Until {
			b.moveClock(budget.Until)
			return nil
		}
		if next.At >= b.end {
			b.finish(StateCompleted, b.end)
			return nil
		}
		if budget.Events > 0 && b.recorder.totals.Events-startEvents >= budget.Events {
			return nil
		}

		a, _ := b.queue.Pop()
		if a.At < b.clock {
			return b.fail(fmt.Errorf("%w: action %s seq %d at %s precedes clock %s", ErrDeterminism, a.Kind, a.Seq, a.At, b.clock))
		}
		b.moveClock(a.At)
		if err := b.execute(a); err != nil {
			return b.fail(err)
		}
		if ce := b.logger.Check(zap.DebugLevel, "action executed"); ce != nil {
			ce.Write(
				zap.String("kind", a.Kind.String()),
				zap.Duration("at", a.At),
				zap.Uint64("seq", a.Seq),
				zap.Uint64("draws", b.rng.Counter()),
			)
		}

		switch {
		case ctx.Err() != nil:
			b.finish(StateCancelled, b.clock)
			return nil
		case b.defeated():
			b.finish(StateCompleted, b.clock)
			return nil
		case b.input.Limit.Mode == LimitKills && b.kills >= b.input.Limit.MaxKills:
			b.finish(StateCompleted, b.clock)
			return nil
		case b.input.Limit.Mode == LimitEvents && b.recorder.totals.Events >= b.input.Limit.MaxEvents:
			b.finish(StateCompleted, b.clock)
			return nil
		}
	}
}

func (b *Battle) moveClock(t time.Duration) {
	if t > b.clock {
		b.clock = t
	}
	b.recorder.AdvanceTo(b.clock)
}

func (b *Battle) finish(state State, at time.Duration) {
	b.moveClock(at)
	b.recorder.Finish(b.clock)
	b.state = state
	b.logger.Debug("battle finished",
		zap.String("state", state.String()),
		zap.Duration("at", b.clock),
		zap.Int("kills", b.kills),
	)
}

func (b *Battle) fail(err error) error {
	b.err = err
	b.state = StateFailed
	b.logger.Error("battle failed", zap.Error(err), zap.Duration("at", b.clock))
	return err
}

// execute dispatches a on its kind.
func (b *Battle) execute(a Action) error {
	switch a.Kind {
	case ActionAttackFire, ActionSpecialFire:
		return b.fireTrack(a)
	case ActionProcPulse:
		return b.pulse(a)
	case ActionEffectExpiry:
		return b.expire(a)
	case ActionDotTick:
		return b.dotTick(a)
	default:
		return fmt.Errorf("%w: unknown action kind %d", ErrDeterminism, a.Kind)
	}
}

func (b *Battle) fireTrack(a Action) error {
	if a.Track < 0 || a.Track >= len(b.tracks) {
		return fmt.Errorf("%w: track %d out of range", ErrDeterminism, a.Track)
	}
	tr := b.tracks[a.Track]
	ready, next := tr.Advance(b.clock)
	if !ready {
		return fmt.Errorf("%w: track %s fired at %s before ready at %s", ErrDeterminism, tr.Category, b.clock, tr.NextReadyAt)
	}
	b.queue.Schedule(Action{At: next, Kind: a.Kind, Track: a.Track})

	def := b.defs[a.Track]
	source := SourceBasic
	if a.Track > 0 {
		source = SourceSkill
	}
	crit := b.rollCrit()
	value := int64(math.Round(def.RawDamage(b.input.Stats) * condition.DamageMultiplier(b.self)))

	b.recorder.RecordEvent(b.clock)
	if err := b.deliver(value, def.DamageType, crit, def.Targeting, tr.Category); err != nil {
		return err
	}
	return b.evaluateProcs(HitEvent{Source: source, Type: def.DamageType, Crit: crit})
}

// rollCrit draws only when the outcome is uncertain.
func (b *Battle) rollCrit() bool {
	c := b.input.Stats.CritChance
	switch {
	case c <= 0:
		return false
	case c >= 1:
		return true
	}
	return b.rng.Chance(c)
}

// deliver selects targets, distributes value and strikes each of them.
func (b *Battle) deliver(value int64, dt DamageType, crit bool, tg Targeting, tag string) error {
	primary := b.primary()
	if primary < 0 {
		return nil
	}
	targets := SelectTargets(tg.Mode, tg.MaxTargets, b.alive(), primary, tg.includesPrimary())
	parts := Distribute(tg.Distribute, value, targets, primary, b.cfg.Remainder)
	for i, ti := range targets {
		hit := Hit{
			Amount:  parts[i],
			Type:    dt,
			Crit:    crit,
			PenFlat: b.input.Stats.ArmorPenFlat,
			PenPct:  b.input.Stats.ArmorPenPct,
		}
		if err := b.strike(ti, hit, tag); err != nil {
			return err
		}
	}
	return nil
}

// strike applies one damage instance to target ti and records it under tag.
func (b *Battle) strike(ti int, hit Hit, tag string) error {
	t := b.targets[ti]
	hit.Multiplier = condition.DamageTakenMultiplier(t.Effects)
	amount, err := b.calc.ComputeHit(hit, b.defender, b.critMultiplier())
	if err != nil {
		return err
	}
	b.recorder.Record(tag, amount, b.clock)
	if !t.Alive() {
		b.overkill += amount
		return nil
	}
	if amount >= t.HP {
		b.overkill += amount - t.HP
		t.HP = 0
		t.DiedAt = b.clock
		b.kills++
		if b.defeated() {
			b.killTime = b.clock
		}
		return nil
	}
	t.HP -= amount
	return nil
}

// evaluateProcs runs the direct-hit procs for ev and fires the ones that pass.
// Nothing is evaluated once the group is defeated.
func (b *Battle) evaluateProcs(ev HitEvent) error {
	if b.defeated() {
		return nil
	}
	for _, def := range b.procs.OnDirectHit(ev, b.clock, b.rng) {
		if b.defeated() {
			break
		}
		if err := b.fireProc(def); err != nil {
			return err
		}
	}
	return nil
}

// fireProc executes def's action and starts its cooldown. Proc damage is not
// a direct hit: it never crits and never triggers further procs.
func (b *Battle) fireProc(def *ProcDef) error {
	b.recorder.RecordEvent(b.clock)
	if def.Action.Effect != "" {
		b.applyEffect(def.ID, def.Action.Effect)
	} else if err := b.deliver(def.Action.Damage, def.Action.DamageType, false, def.Action.Targeting, "proc:"+def.ID); err != nil {
		return err
	}
	b.procs.MarkFired(def.ID, b.clock)
	return nil
}

// applyEffect applies effect id for proc procID. An unknown effect is logged
// and skipped.
func (b *Battle) applyEffect(procID, id string) {
	def, ok := b.catalog.Effect(id)
	if !ok {
		b.logger.Warn("proc references unknown effect",
			zap.String("proc", procID),
			zap.String("effect", id),
			zap.Duration("at", b.clock),
		)
		return
	}
	bearer := SelfTarget
	set := b.self
	if def.Target == condition.TargetEnemy {
		bearer = b.primary()
		if bearer < 0 {
			return
		}
		set = b.targets[bearer].Effects
	}
	b.gen++
	app, err := set.Apply(def, b.clock, b.gen)
	if err != nil {
		b.logger.Warn("applying effect", zap.String("effect", id), zap.Error(err))
		return
	}
	if app.ExpiresAt > 0 {
		b.queue.Schedule(Action{At: app.ExpiresAt, Kind: ActionEffectExpiry, Ref: id, Target: bearer, Generation: app.Generation})
	}
	if def.IsDot() && app.Fresh {
		b.queue.Schedule(Action{At: b.clock + def.TickInterval, Kind: ActionDotTick, Ref: id, Target: bearer, Generation: app.Generation})
	}
	if bearer == SelfTarget && def.HastePct != 0 {
		b.refreshHaste()
	}
}

func (b *Battle) expire(a Action) error {
	set, err := b.effectSet(a.Target)
	if err != nil {
		return err
	}
	ac, ok := set.Get(a.Ref)
	if !ok || !set.Expire(a.Ref, a.Generation) {
		return nil
	}
	b.recorder.RecordEvent(b.clock)
	if a.Target == SelfTarget && ac.Def.HastePct != 0 {
		b.refreshHaste()
	}
	return nil
}

// dotTick deals one tick of a damage-over-time effect. The chain ends when
// the effect is gone, was re-applied fresh, or its bearer is dead.
func (b *Battle) dotTick(a Action) error {
	set, err := b.effectSet(a.Target)
	if err != nil {
		return err
	}
	if a.Target == SelfTarget {
		return fmt.Errorf("%w: dot tick scheduled on self", ErrDeterminism)
	}
	ac, ok := set.Get(a.Ref)
	if !ok || ac.TickChain != a.Generation || !b.targets[a.Target].Alive() {
		return nil
	}
	def := ac.Def
	dt := DamageType(def.DamageType)
	if dt == "" {
		dt = DamagePhysical
	}
	b.queue.Schedule(Action{At: b.clock + def.TickInterval, Kind: ActionDotTick, Ref: a.Ref, Target: a.Target, Generation: a.Generation})

	value := int64(math.Round(float64(def.TickDamage*int64(ac.Stacks)) * condition.DamageMultiplier(b.self)))
	b.recorder.RecordEvent(b.clock)
	hit := Hit{
		Amount:  value,
		Type:    dt,
		PenFlat: b.input.Stats.ArmorPenFlat,
		PenPct:  b.input.Stats.ArmorPenPct,
	}
	if err := b.strike(a.Target, hit, "dot:"+a.Ref); err != nil {
		return err
	}
	return b.evaluateProcs(HitEvent{Source: SourceSkill, Type: dt, Dot: true})
}

func (b *Battle) pulse(a Action) error {
	def, ok := b.procs.Def(a.Ref)
	if !ok || def.Trigger != TriggerRPPM {
		return fmt.Errorf("%w: pulse for unknown periodic proc %q", ErrDeterminism, a.Ref)
	}
	interval := def.pulseInterval(b.cfg.PulseInterval)
	b.queue.Schedule(Action{At: b.clock + interval, Kind: ActionProcPulse, Ref: a.Ref})
	if b.defeated() || !b.procs.OnPulse(def.ID, b.clock, interval, b.rng) {
		return nil
	}
	return b.fireProc(def)
}
