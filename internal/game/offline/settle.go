// Package offline settles elapsed real time as a series of fast-forwarded
// encounters and aggregates their rewards.
package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/dice"
	"github.com/cory-johannsen/idlebattle/internal/game/npc"
)

// ErrNoProgress is returned when an encounter consumes no simulated time,
// which would make settlement loop forever.
var ErrNoProgress = errors.New("encounter consumed no simulated time")

// Salts separating the per-encounter streams.
const (
	encounterSalt = 0x656e63 // "enc"
	lootSalt      = 0x6c6f6f74
)

// Options tune settlement.
type Options struct {
	// EncounterTimeout caps the simulated length of one encounter.
	EncounterTimeout time.Duration
	// RespawnDelay separates encounters when the enemy template sets none.
	RespawnDelay time.Duration
	// CheckEvery is the number of events between wall budget checks.
	CheckEvery int64
	// WallBudget bounds the real time one settlement may take. Zero disables it.
	WallBudget time.Duration
	// Now returns the wall clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the settlement defaults.
func DefaultOptions() Options {
	return Options{
		EncounterTimeout: 5 * time.Minute,
		RespawnDelay:     5 * time.Second,
		CheckEvery:       10_000,
		WallBudget:       10 * time.Second,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.EncounterTimeout <= 0 {
		return fmt.Errorf("offline: encounter timeout must be > 0")
	}
	if o.RespawnDelay < 0 || o.WallBudget < 0 {
		return fmt.Errorf("offline: respawn delay and wall budget must be >= 0")
	}
	if o.CheckEvery <= 0 {
		return fmt.Errorf("offline: check_every must be > 0")
	}
	return nil
}

// Request describes the time to settle. Input.Limit is ignored; every
// encounter runs for at most Options.EncounterTimeout.
type Request struct {
	Input   combat.Input  `json:"input"`
	Elapsed time.Duration `json:"elapsed"`
	// Expected replaces loot rolls with their mean values.
	Expected bool `json:"expected"`
}

// Settlement aggregates the outcome of a settled period.
type Settlement struct {
	Encounters  int           `json:"encounters"`
	Kills       int           `json:"kills"`
	Simulated   time.Duration `json:"simulated"`
	TotalDamage int64         `json:"total_damage"`
	Events      int64         `json:"events"`
	Experience  int64         `json:"experience"`
	Currency    int64         `json:"currency"`
	// Items holds sampled loot quantities by item id.
	Items map[string]int64 `json:"items,omitempty"`
	// ExpectedCurrency and ExpectedItems hold mean rewards in expected mode.
	ExpectedCurrency float64            `json:"expected_currency,omitempty"`
	ExpectedItems    map[string]float64 `json:"expected_items,omitempty"`
	// Partial is set when cancellation or the wall budget cut settlement short.
	Partial bool `json:"partial"`
}

// Settler runs settlements against one catalog and engine configuration.
type Settler struct {
	catalog combat.Catalog
	cfg     combat.Config
	opts    Options
	logger  *zap.Logger
}

// NewSettler creates a Settler. Segment retention is disabled for its battles.
//
// Precondition: catalog must not be nil.
// Postcondition: Returns an error if opts or cfg is invalid.
func NewSettler(catalog combat.Catalog, cfg combat.Config, opts Options, logger *zap.Logger) (*Settler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cfg.RetainSegments = false
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Settler{catalog: catalog, cfg: cfg, opts: opts, logger: logger}, nil
}

// Settle fast-forwards req.Elapsed of simulated time as consecutive
// encounters. Encounter i is seeded with dice.Derive(seed, i) so a settlement
// is reproducible from its request.
//
// Postcondition: On cancellation or an exhausted wall budget the aggregate so
// far is returned with Partial set and a nil error. Configuration errors are
// returned before any encounter runs.
func (s *Settler) Settle(ctx context.Context, req Request) (Settlement, error) {
	var out Settlement
	if req.Elapsed <= 0 {
		return out, fmt.Errorf("%w: elapsed must be > 0, got %s", combat.ErrInvalidConfig, req.Elapsed)
	}
	deadline := time.Time{}
	if s.opts.WallBudget > 0 {
		deadline = s.opts.Now().Add(s.opts.WallBudget)
	}
	overBudget := func() bool {
		return !deadline.IsZero() && !s.opts.Now().Before(deadline)
	}

	remaining := req.Elapsed
	for i := uint64(0); remaining > 0; i++ {
		if ctx.Err() != nil || overBudget() {
			out.Partial = true
			break
		}
		in := req.Input
		in.Seed = dice.Derive(req.Input.Seed^encounterSalt, i)
		in.Limit = combat.ForDuration(min(s.opts.EncounterTimeout, remaining))

		b, err := combat.NewBattle(in, s.catalog, s.cfg, s.logger)
		if err != nil {
			return out, err
		}
		for !b.State().Terminal() {
			if err := b.Advance(ctx, combat.Budget{Events: s.opts.CheckEvery}); err != nil {
				return out, fmt.Errorf("encounter %d: %w", i, err)
			}
			if !b.State().Terminal() && overBudget() {
				b.Cancel()
			}
		}

		res := b.Result()
		step := res.Elapsed
		if res.Killed {
			step += b.Enemy().Respawn(s.opts.RespawnDelay)
		}
		s.collect(&out, b.Enemy(), in.Seed, res, req.Expected)
		if res.State == combat.StateCancelled {
			out.Partial = true
			break
		}
		if step <= 0 {
			return out, fmt.Errorf("encounter %d: %w", i, ErrNoProgress)
		}
		remaining -= step
	}
	if out.Simulated > req.Elapsed {
		out.Simulated = req.Elapsed
	}

	s.logger.Info("offline settlement",
		zap.Duration("elapsed", req.Elapsed),
		zap.Int("encounters", out.Encounters),
		zap.Int("kills", out.Kills),
		zap.Int64("currency", out.Currency),
		zap.Bool("partial", out.Partial),
	)
	return out, nil
}

// collect adds one encounter's outcome to out. Every defeated group member
// yields the enemy's experience and one loot roll.
func (s *Settler) collect(out *Settlement, enemy *npc.Template, seed uint64, res combat.Result, expected bool) {
	out.Encounters++
	out.Kills += res.Kills
	out.Simulated += res.Elapsed
	if res.Killed {
		out.Simulated += enemy.Respawn(s.opts.RespawnDelay)
	}
	out.TotalDamage += res.TotalDamage
	out.Events += res.Events
	out.Experience += enemy.Experience * int64(res.Kills)
	if enemy.Loot == nil || res.Kills == 0 {
		return
	}

	if expected {
		mean := npc.Expected(*enemy.Loot)
		out.ExpectedCurrency += mean.Currency * float64(res.Kills)
		for _, id := range enemy.Loot.ItemIDs() {
			if out.ExpectedItems == nil {
				out.ExpectedItems = make(map[string]float64)
			}
			out.ExpectedItems[id] += mean.Items[id] * float64(res.Kills)
		}
		return
	}

	roller := dice.NewLoggedRoller(dice.NewStream(dice.Derive(seed, lootSalt)), s.logger)
	for k := 0; k < res.Kills; k++ {
		loot := npc.GenerateLoot(*enemy.Loot, roller)
		out.Currency += int64(loot.Currency)
		for _, item := range loot.Items {
			if out.Items == nil {
				out.Items = make(map[string]int64)
			}
			out.Items[item.ItemDefID] += int64(item.Quantity)
		}
	}
}
