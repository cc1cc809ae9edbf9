package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/bootstrap"
	"github.com/cory-johannsen/idlebattle/internal/game/character"
	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/offline"
	"github.com/cory-johannsen/idlebattle/internal/storage/sqlite"
)

// inputFlags describe one battle input on the command line.
type inputFlags struct {
	character string
	enemy     string
	count     int
	seed      uint64
	duration  time.Duration
	events    int64
	kills     int
	unbounded bool
}

func addInputFlags(fs *flag.FlagSet) *inputFlags {
	f := &inputFlags{}
	fs.StringVar(&f.character, "character", "content/characters/aria.yaml", "character sheet YAML")
	fs.StringVar(&f.enemy, "enemy", "goblin", "enemy id")
	fs.IntVar(&f.count, "count", 1, "number of enemies in the group")
	fs.Uint64Var(&f.seed, "seed", 0, "battle seed; 0 derives one from the character and enemy")
	fs.DurationVar(&f.duration, "duration", time.Minute, "simulated duration limit")
	fs.Int64Var(&f.events, "events", 0, "stop after this many events instead of a duration")
	fs.IntVar(&f.kills, "kills", 0, "stop after this many kills instead of a duration")
	fs.BoolVar(&f.unbounded, "unbounded", false, "run until the group is defeated")
	return f
}

func (f *inputFlags) limit() combat.Limit {
	switch {
	case f.unbounded:
		return combat.Limit{Mode: combat.LimitUnbounded}
	case f.kills > 0:
		return combat.Limit{Mode: combat.LimitKills, MaxKills: f.kills}
	case f.events > 0:
		return combat.Limit{Mode: combat.LimitEvents, MaxEvents: f.events}
	default:
		return combat.ForDuration(f.duration)
	}
}

func (f *inputFlags) input() (combat.Input, error) {
	c, err := character.LoadFile(f.character)
	if err != nil {
		return combat.Input{}, err
	}
	seed := f.seed
	if seed == 0 {
		seed = c.Seed(f.enemy)
	}
	return c.Input(f.enemy, f.count, seed, f.limit()), nil
}

// summary is the printed form of a result.
type summary struct {
	ID             string           `json:"id,omitempty"`
	State          string           `json:"state"`
	Elapsed        string           `json:"elapsed"`
	TotalDamage    int64            `json:"total_damage"`
	DPS            float64          `json:"dps"`
	Events         int64            `json:"events"`
	Kills          int              `json:"kills"`
	Killed         bool             `json:"killed"`
	KillTime       string           `json:"kill_time,omitempty"`
	Overkill       int64            `json:"overkill"`
	Partial        bool             `json:"partial"`
	DamageBySource map[string]int64 `json:"damage_by_source,omitempty"`
	Segments       []combat.Segment `json:"segments,omitempty"`
}

func newSummary(id string, res combat.Result, withSegments bool) summary {
	s := summary{
		ID:          id,
		State:       res.State.String(),
		Elapsed:     res.Elapsed.String(),
		TotalDamage: res.TotalDamage,
		Events:      res.Events,
		Kills:       res.Kills,
		Killed:      res.Killed,
		Overkill:    res.Overkill,
		Partial:     res.Partial,
	}
	if res.Elapsed > 0 {
		s.DPS = float64(res.TotalDamage) / res.Elapsed.Seconds()
	}
	if res.Killed {
		s.KillTime = res.KillTime.String()
	}
	if len(res.DamageBySource) > 0 {
		s.DamageBySource = res.DamageBySource
	}
	if withSegments {
		s.Segments = res.Segments
	}
	return s
}

// pausedView is the printed form of a paused battle.
type pausedView struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Clock       string `json:"clock"`
	Target      string `json:"target"`
	TotalDamage int64  `json:"total_damage"`
	Kills       int    `json:"kills"`
}

func newPausedView(id string, st combat.Status) pausedView {
	return pausedView{
		ID:          id,
		State:       st.State.String(),
		Clock:       st.Elapsed.String(),
		Target:      st.Target.String(),
		TotalDamage: st.TotalDamage,
		Kills:       st.Kills,
	}
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) openStore() (*sqlite.Store, error) {
	return sqlite.Open(a.cfg.SQLite.Path)
}

func (a *app) runBattle(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	in := addInputFlags(fs)
	segments := fs.Bool("segments", false, "include the segment log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	input, err := in.input()
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := combat.Run(ctx, input, a.catalog, a.engine, a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("battle finished",
		zap.String("state", res.State.String()),
		zap.Int64("total_damage", res.TotalDamage),
		zap.Duration("wall", time.Since(start)),
	)
	return a.print(newSummary("", res, *segments))
}

// start runs a new battle up to a pause point and stores its snapshot. A
// battle that ends before the pause point stores its result instead.
func (a *app) start(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	in := addInputFlags(fs)
	id := fs.String("id", "", "battle id (required)")
	pauseAt := fs.Duration("pause-at", 30*time.Second, "simulated time to pause at")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *pauseAt <= 0 {
		return errors.New("start: -id and a positive -pause-at are required")
	}
	input, err := in.input()
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	b, err := combat.NewBattle(input, a.catalog, a.engine, a.logger)
	if err != nil {
		return err
	}
	return a.checkpoint(ctx, store, *id, b, *pauseAt)
}

// resume restores a stored battle and continues it, to completion or for
// the given simulated time.
func (a *app) resume(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	id := fs.String("id", "", "battle id (required)")
	forDur := fs.Duration("for", 0, "simulated time to advance before pausing again; 0 runs to completion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("resume: -id is required")
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	data, err := store.LoadSnapshot(ctx, *id)
	if err != nil {
		return err
	}
	b, err := combat.Restore(data, a.catalog, a.engine, a.logger)
	if err != nil {
		return err
	}
	var until time.Duration
	if *forDur > 0 {
		until = b.Clock() + *forDur
	}
	return a.checkpoint(ctx, store, *id, b, until)
}

// checkpoint advances b until the simulated time until (to completion when
// until is zero). A terminal battle has its result stored and its snapshot
// removed; otherwise its snapshot is stored.
func (a *app) checkpoint(ctx context.Context, store *sqlite.Store, id string, b *combat.Battle, until time.Duration) error {
	if err := b.Advance(ctx, combat.Budget{Until: until}); err != nil {
		return err
	}
	if b.State().Terminal() {
		res := b.Result()
		if err := store.SaveResult(ctx, id, b.Input(), res); err != nil {
			return err
		}
		if err := store.DeleteSnapshot(ctx, id); err != nil {
			return err
		}
		a.logger.Info("battle finished", zap.String("id", id), zap.String("state", res.State.String()))
		return a.print(newSummary(id, res, false))
	}
	data, err := b.Snapshot()
	if err != nil {
		return err
	}
	if err := store.SaveSnapshot(ctx, id, data); err != nil {
		return err
	}
	a.logger.Info("battle paused", zap.String("id", id), zap.Duration("clock", b.Clock()))
	return a.print(newPausedView(id, b.Status()))
}

func (a *app) settle(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("settle", flag.ContinueOnError)
	in := addInputFlags(fs)
	elapsed := fs.Duration("elapsed", 8*time.Hour, "offline time to settle")
	expected := fs.Bool("expected", a.cfg.Offline.Expected, "use expected rewards instead of sampled loot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	input, err := in.input()
	if err != nil {
		return err
	}
	settler, err := offline.NewSettler(a.catalog, a.engine, bootstrap.OfflineOptions(a.cfg.Offline), a.logger)
	if err != nil {
		return err
	}
	out, err := settler.Settle(ctx, offline.Request{Input: input, Elapsed: *elapsed, Expected: *expected})
	if err != nil {
		return err
	}
	return a.print(out)
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	infos, err := store.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	if infos == nil {
		infos = []sqlite.SnapshotInfo{}
	}
	return a.print(infos)
}

func (a *app) show(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	id := fs.String("id", "", "battle id (required)")
	segments := fs.Bool("segments", false, "include the segment log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("show: -id is required")
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	stored, err := store.GetResult(ctx, *id)
	if err != nil {
		return fmt.Errorf("show %s: %w", *id, err)
	}
	return a.print(newSummary(stored.ID, stored.Result, *segments))
}
