package combat

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/game/condition"
	"github.com/cory-johannsen/idlebattle/internal/game/dice"
	"github.com/cory-johannsen/idlebattle/internal/game/npc"
)

// Catalog resolves content referenced by a battle. It must be immutable
// for the lifetime of every battle built from it.
type Catalog interface {
	Profession(id string) (*Profession, error)
	Enemy(id string) (*npc.Template, error)
	Proc(id string) (*ProcDef, error)
	Effect(id string) (*condition.EffectDef, bool)
}

// Target is one member of the enemy group.
type Target struct {
	Index   int
	MaxHP   int64
	HP      int64
	DiedAt  time.Duration
	Effects *condition.ActiveSet
}

// Alive reports whether the target has health left.
func (t *Target) Alive() bool { return t.HP > 0 }

// Battle is the mutable state of one encounter. Every random draw made on
// its behalf comes from its single stream.
//
// A Battle is not safe for concurrent use.
type Battle struct {
	input    Input
	cfg      Config
	catalog  Catalog
	logger   *zap.Logger
	calc     *Calculator
	prof     *Profession
	enemy    *npc.Template
	defender Defender
	defs     []*TrackDef

	rng      *dice.Stream
	clock    time.Duration
	end      time.Duration
	state    State
	err      error
	tracks   []*Track
	procs    *ProcRegistry
	self     *condition.ActiveSet
	targets  []*Target
	queue    *Queue
	recorder *Recorder
	gen      uint64
	kills    int
	overkill int64
	killTime time.Duration
}

// NewBattle validates input, resolves its content and schedules the opening
// actions: every track at t=0 and every rate-based proc one pulse in.
//
// Precondition: catalog must not be nil.
// Postcondition: Returns a Battle in StateCreated, or an error wrapping
// ErrInvalidConfig or the catalog's lookup error. No Battle is returned on error.
func NewBattle(input Input, catalog Catalog, cfg Config, logger *zap.Logger) (*Battle, error) {
	b, err := build(input, catalog, cfg, logger)
	if err != nil {
		return nil, err
	}
	for i := range b.tracks {
		kind := ActionAttackFire
		if i > 0 {
			kind = ActionSpecialFire
		}
		b.queue.Schedule(Action{At: 0, Kind: kind, Track: i})
	}
	for _, def := range b.procs.Periodic() {
		b.queue.Schedule(Action{At: def.pulseInterval(cfg.PulseInterval), Kind: ActionProcPulse, Ref: def.ID})
	}
	b.logger.Debug("battle created",
		zap.String("profession", input.ProfessionID),
		zap.String("enemy", input.EnemyID),
		zap.Int("enemy_count", input.EnemyCount),
		zap.Uint64("seed", input.Seed),
		zap.Duration("end", b.end),
	)
	return b, nil
}

// build resolves content and constructs fresh state without scheduling anything.
func build(input Input, catalog Catalog, cfg Config, logger *zap.Logger) (*Battle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := input.Stats.Validate(); err != nil {
		return nil, err
	}
	if input.EnemyCount < 1 {
		return nil, fmt.Errorf("%w: enemy_count must be >= 1, got %d", ErrInvalidConfig, input.EnemyCount)
	}
	if err := input.Limit.Validate(input.EnemyCount); err != nil {
		return nil, err
	}
	prof, err := catalog.Profession(input.ProfessionID)
	if err != nil {
		return nil, err
	}
	enemy, err := catalog.Enemy(input.EnemyID)
	if err != nil {
		return nil, err
	}

	procs := NewProcRegistry()
	ids := append(append([]string{}, prof.Procs...), input.Procs...)
	for _, id := range ids {
		def, err := catalog.Proc(id)
		if err != nil {
			return nil, err
		}
		procs.Register(def)
	}

	b := &Battle{
		input:   input,
		cfg:     cfg,
		catalog: catalog,
		logger:  logger,
		calc:    NewCalculator(cfg.Mitigation, cfg.Strategy, cfg.CritMultiplier),
		prof:    prof,
		enemy:   enemy,
		defender: Defender{
			Armor:    enemy.Armor,
			Resist:   enemy.Resist,
			Level:    enemy.Level,
			Shielded: enemy.Shielded,
		},
		defs:     prof.trackDefs(),
		rng:      dice.NewStream(input.Seed),
		end:      input.Limit.end(cfg.MaxDuration),
		state:    StateCreated,
		procs:    procs,
		self:     condition.NewActiveSet(),
		queue:    &Queue{},
		recorder: NewRecorder(cfg.SegmentWindow, cfg.RetainSegments),
	}
	haste := HasteFactor(input.Stats.HastePct, cfg.HasteFloor)
	for i, def := range b.defs {
		category := CategoryBasic
		if i > 0 {
			category = CategorySpecial
		}
		b.tracks = append(b.tracks, NewTrack(category, def.Interval, haste, cfg.HasteFloor))
	}
	for i := 0; i < input.EnemyCount; i++ {
		b.targets = append(b.targets, &Target{
			Index:   i,
			MaxHP:   enemy.MaxHP,
			HP:      enemy.MaxHP,
			Effects: condition.NewActiveSet(),
		})
	}
	return b, nil
}

// Input returns the battle input.
func (b *Battle) Input() Input { return b.input }

// State returns the lifecycle state.
func (b *Battle) State() State { return b.state }

// Err returns the failure that moved the battle to StateFailed, or nil.
func (b *Battle) Err() error { return b.err }

// Clock returns the current simulated time.
func (b *Battle) Clock() time.Duration { return b.clock }

// End returns the simulated time at which the run window closes.
func (b *Battle) End() time.Duration { return b.end }

// Enemy returns the resolved enemy template.
func (b *Battle) Enemy() *npc.Template { return b.enemy }

// Kills returns the number of defeated group members.
func (b *Battle) Kills() int { return b.kills }

// Draws returns how many values the battle's stream has produced.
func (b *Battle) Draws() uint64 { return b.rng.Counter() }

// Tracks returns the battle's tracks. Callers must not modify them.
func (b *Battle) Tracks() []*Track { return b.tracks }

// Procs returns the battle's proc registry. Callers must not modify it.
func (b *Battle) Procs() *ProcRegistry { return b.procs }

// Targets returns the enemy group. Callers must not modify it.
func (b *Battle) Targets() []*Target { return b.targets }

// SelfEffects returns the effects active on the attacker.
func (b *Battle) SelfEffects() *condition.ActiveSet { return b.self }

// Pending returns the pending actions in execution order.
func (b *Battle) Pending() []Action { return b.queue.Pending() }

// ReadSince returns the closed segments with index >= cursor.
func (b *Battle) ReadSince(cursor int) []Segment { return b.recorder.ReadSince(cursor) }

// Pause marks a running battle as checkpointed.
func (b *Battle) Pause() {
	if b.state == StateRunning {
		b.state = StatePaused
	}
}

// Cancel ends a battle that has not reached a terminal state, closing the
// recorder at the current clock.
//
// Postcondition: State() is terminal.
func (b *Battle) Cancel() {
	if b.state.Terminal() {
		return
	}
	b.finish(StateCancelled, b.clock)
}

// primary returns the index of the first living target, or -1.
func (b *Battle) primary() int {
	for i, t := range b.targets {
		if t.Alive() {
			return i
		}
	}
	return -1
}

func (b *Battle) alive() []bool {
	out := make([]bool, len(b.targets))
	for i, t := range b.targets {
		out[i] = t.Alive()
	}
	return out
}

// defeated reports whether every group member is at zero health.
func (b *Battle) defeated() bool {
	return b.primary() < 0
}

func (b *Battle) critMultiplier() float64 {
	if b.input.Stats.CritMultiplier > 0 {
		return b.input.Stats.CritMultiplier
	}
	return b.cfg.CritMultiplier
}

// effectSet returns the effect set of bearer.
func (b *Battle) effectSet(bearer int) (*condition.ActiveSet, error) {
	if bearer == SelfTarget {
		return b.self, nil
	}
	if bearer < 0 || bearer >= len(b.targets) {
		return nil, fmt.Errorf("%w: effect bearer %d out of range", ErrDeterminism, bearer)
	}
	return b.targets[bearer].Effects, nil
}

// refreshHaste pushes the current haste to every track. The change is
// prospective: pending fires keep their time.
func (b *Battle) refreshHaste() {
	f := HasteFactor(b.input.Stats.HastePct+condition.HastePct(b.self), b.cfg.HasteFloor)
	for _, t := range b.tracks {
		t.SetHaste(f)
	}
}
