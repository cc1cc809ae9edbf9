package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
)

// ErrSessionNotFound is returned when no live session has the given id.
var ErrSessionNotFound = errors.New("session not found")

// advanceChunk is how many events a catch-up runs between context checks.
const advanceChunk = 4096

// ResultSink persists the final result of a session when it stops.
type ResultSink interface {
	SaveResult(ctx context.Context, id string, input combat.Input, res combat.Result) error
}

// Options tune the live run mode.
type Options struct {
	// Speed is simulated time per unit of wall time. Defaults to 1.
	Speed float64
	// IdleTimeout is how long a session may go unpolled before Reap removes
	// it. Zero disables reaping.
	IdleTimeout time.Duration
	// FeedBuffer is the channel size of each Feed.
	FeedBuffer int
	// Now returns the wall clock. Defaults to time.Now.
	Now func() time.Time
	// Sink receives the result of every stopped or reaped session. Optional.
	Sink ResultSink
}

// Update is what a poll returns.
type Update struct {
	ID       string           `json:"id"`
	Status   combat.Status    `json:"status"`
	Segments []combat.Segment `json:"segments,omitempty"`
	// Cursor is the cursor to pass to the next poll.
	Cursor int `json:"cursor"`
}

type entry struct {
	mu      sync.Mutex
	id      string
	battle  *combat.Battle
	wall    time.Time     // wall time the battle was last advanced to
	target  time.Duration // simulated time owed by the wall clock so far
	seen    time.Time
	feeds   []*Feed
	pushed  int // segments already delivered to feeds
	stopped bool
}

// Manager owns the live sessions. All methods are safe for concurrent use;
// calls on the same session are serialized by that session's mutex.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	catalog  combat.Catalog
	cfg      combat.Config
	opts     Options
	logger   *zap.Logger
}

// NewManager creates an empty Manager that builds battles from catalog and cfg.
//
// Precondition: catalog must not be nil.
func NewManager(catalog combat.Catalog, cfg combat.Config, opts Options, logger *zap.Logger) *Manager {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*entry),
		catalog:  catalog,
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
	}
}

// Start builds a battle for input and registers it under a fresh id. The
// battle does not advance until the first poll after wall time has passed.
//
// Postcondition: Returns the session id, or the construction error with no
// session registered.
func (m *Manager) Start(input combat.Input) (string, error) {
	b, err := combat.NewBattle(input, m.catalog, m.cfg, m.logger)
	if err != nil {
		return "", err
	}
	id := m.add(b)
	m.logger.Info("session started",
		zap.String("session_id", id),
		zap.String("profession", input.ProfessionID),
		zap.String("enemy", input.EnemyID),
		zap.Uint64("seed", input.Seed),
	)
	return id, nil
}

// Restore rebuilds a session from Serialize output under a fresh id. The
// restored session continues from the snapshot's simulated time.
//
// Postcondition: Returns an error wrapping combat.ErrResumeMismatch when the
// snapshot cannot be continued; no session is registered in that case.
func (m *Manager) Restore(data []byte) (string, error) {
	b, err := combat.Restore(data, m.catalog, m.cfg, m.logger)
	if err != nil {
		return "", err
	}
	id := m.add(b)
	m.logger.Info("session restored", zap.String("session_id", id), zap.Duration("clock", b.Clock()))
	return id, nil
}

func (m *Manager) add(b *combat.Battle) string {
	now := m.opts.Now()
	e := &entry{
		id:     uuid.New().String(),
		battle: b,
		wall:   now,
		target: b.Clock(),
		seen:   now,
	}
	m.mu.Lock()
	m.sessions[e.id] = e
	m.mu.Unlock()
	return e.id
}

func (m *Manager) get(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return e, nil
}

// Poll advances session id by the wall time elapsed since its last advance
// and returns its status and the closed segments from cursor onward. A poll
// with no elapsed wall time does not touch the battle. Cancelling ctx
// interrupts a long catch-up; the battle keeps running and the next poll
// resumes the catch-up.
//
// Postcondition: Returns an error wrapping ErrSessionNotFound for an
// unknown id, ctx's error when it was cancelled, or the battle's failure
// once it is in StateFailed.
func (m *Manager) Poll(ctx context.Context, id string, cursor int) (Update, error) {
	e, err := m.get(id)
	if err != nil {
		return Update{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return Update{}, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	if err := m.advance(ctx, e, m.opts.Now()); err != nil {
		return Update{}, err
	}
	if cursor < 0 {
		cursor = 0
	}
	segs := e.battle.ReadSince(cursor)
	return Update{
		ID:       id,
		Status:   e.battle.Status(),
		Segments: segs,
		Cursor:   cursor + len(segs),
	}, nil
}

// advance moves e forward to now. The battle runs in chunks of
// advanceChunk events and ctx is checked between chunks. A cancelled ctx
// stops the catch-up without ending the battle; only Stop and Reap end a
// live session.
//
// Precondition: e.mu is held.
func (m *Manager) advance(ctx context.Context, e *entry, now time.Time) error {
	e.seen = now
	if now.After(e.wall) {
		e.target += time.Duration(float64(now.Sub(e.wall)) * m.opts.Speed)
		e.wall = now
	}
	if e.battle.State().Terminal() {
		return e.battle.Err()
	}
	if e.target <= e.battle.Clock() {
		return nil
	}
	defer m.publish(e)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		before := e.battle.Status().Events
		if err := e.battle.Advance(context.Background(), combat.Budget{Until: e.target, Events: advanceChunk}); err != nil {
			return err
		}
		if e.battle.State().Terminal() || e.battle.Status().Events-before < advanceChunk {
			return nil
		}
	}
}

// publish pushes newly closed segments to every feed. A feed that cannot
// keep up is closed and dropped.
//
// Precondition: e.mu is held.
func (m *Manager) publish(e *entry) {
	segs := e.battle.ReadSince(e.pushed)
	e.pushed += len(segs)
	if len(e.feeds) == 0 {
		return
	}
	kept := e.feeds[:0]
	for _, f := range e.feeds {
		ok := true
		for _, seg := range segs {
			if err := f.Push(seg); err != nil {
				m.logger.Warn("dropping segment feed", zap.String("session_id", e.id), zap.Error(err))
				_ = f.Close()
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, f)
		}
	}
	e.feeds = kept
}

// Subscribe returns a Feed receiving every segment of session id closed
// after this call.
func (m *Manager) Subscribe(id string) (*Feed, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	f := NewFeed(id, m.opts.FeedBuffer)
	e.feeds = append(e.feeds, f)
	return f, nil
}

// Unsubscribe closes f and detaches it from session id. Unknown sessions
// and feeds are ignored.
func (m *Manager) Unsubscribe(id string, f *Feed) {
	_ = f.Close()
	e, err := m.get(id)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, g := range e.feeds {
		if g == f {
			e.feeds = append(e.feeds[:i], e.feeds[i+1:]...)
			return
		}
	}
}

// Serialize advances session id to the wall clock and returns its snapshot.
// The battle is marked paused and continues on the next poll. Cancelling
// ctx during the catch-up returns ctx's error and no snapshot.
func (m *Manager) Serialize(ctx context.Context, id string) ([]byte, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	if err := m.advance(ctx, e, m.opts.Now()); err != nil {
		return nil, err
	}
	data, err := e.battle.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("serializing session %s: %w", id, err)
	}
	m.logger.Info("session serialized", zap.String("session_id", id), zap.Duration("clock", e.battle.Clock()))
	return data, nil
}

// Stop advances session id to the wall clock, cancels it if it is still
// running, removes it and returns its result. The result is handed to the
// configured sink.
//
// Postcondition: The session is no longer registered. On a failed battle or
// sink error the result is still returned alongside the error.
func (m *Manager) Stop(ctx context.Context, id string) (combat.Result, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return combat.Result{}, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return m.finalize(ctx, e, "session stopped")
}

func (m *Manager) finalize(ctx context.Context, e *entry, msg string) (combat.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	advErr := m.advance(ctx, e, m.opts.Now())
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(advErr, ctxErr) {
		// The battle is cancelled at the point the catch-up reached.
		advErr = nil
	}
	e.battle.Cancel()
	m.publish(e)
	for _, f := range e.feeds {
		_ = f.Close()
	}
	e.feeds = nil
	e.stopped = true

	res := e.battle.Result()
	m.logger.Info(msg,
		zap.String("session_id", e.id),
		zap.String("state", res.State.String()),
		zap.Duration("elapsed", res.Elapsed),
		zap.Int64("total_damage", res.TotalDamage),
	)
	if advErr != nil {
		return res, advErr
	}
	if m.opts.Sink != nil {
		if err := m.opts.Sink.SaveResult(ctx, e.id, e.battle.Input(), res); err != nil {
			return res, fmt.Errorf("saving result of session %s: %w", e.id, err)
		}
	}
	return res, nil
}

// Reap stops every session that has not been polled for IdleTimeout as of now.
//
// Postcondition: Returns the reaped ids in sorted order.
func (m *Manager) Reap(ctx context.Context, now time.Time) []string {
	if m.opts.IdleTimeout <= 0 {
		return nil
	}
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var candidates []*entry
	for _, e := range entries {
		e.mu.Lock()
		if !e.stopped && now.Sub(e.seen) >= m.opts.IdleTimeout {
			candidates = append(candidates, e)
		}
		e.mu.Unlock()
	}
	if len(candidates) == 0 {
		return nil
	}

	var idle []*entry
	m.mu.Lock()
	for _, e := range candidates {
		// Skip entries stopped and removed since the check.
		if m.sessions[e.id] == e {
			delete(m.sessions, e.id)
			idle = append(idle, e)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(idle))
	for _, e := range idle {
		if _, err := m.finalize(ctx, e, "session reaped"); err != nil {
			m.logger.Warn("reaping session", zap.String("session_id", e.id), zap.Error(err))
		}
		ids = append(ids, e.id)
	}
	sort.Strings(ids)
	return ids
}

// Run reaps idle sessions every interval until ctx is cancelled.
//
// Precondition: interval > 0.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ids := m.Reap(ctx, m.opts.Now()); len(ids) > 0 {
				m.logger.Debug("reaper pass", zap.Int("reaped", len(ids)))
			}
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the live session ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
