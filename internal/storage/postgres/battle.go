package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
)

// ErrBattleNotFound is returned when a battle, or its snapshot, does not exist.
var ErrBattleNotFound = errors.New("battle not found")

// ErrBattleExists is returned when creating a battle whose id is already stored.
var ErrBattleExists = errors.New("battle already exists")

// BattleRecord is the stored summary of one battle.
type BattleRecord struct {
	ID             string
	Input          combat.Input
	State          string
	TotalDamage    int64
	Events         int64
	Kills          int
	Killed         bool
	KillTime       time.Duration
	Elapsed        time.Duration
	Overkill       int64
	Partial        bool
	DamageBySource map[string]int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BattleRepository persists battles, their segments and snapshots.
type BattleRepository struct {
	db *pgxpool.Pool
}

// NewBattleRepository creates a BattleRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewBattleRepository(db *pgxpool.Pool) *BattleRepository {
	return &BattleRepository{db: db}
}

// Create registers a battle that has just started.
//
// Precondition: id must be non-empty.
// Postcondition: A row in state "running" exists, or ErrBattleExists is returned.
func (r *BattleRepository) Create(ctx context.Context, id string, input combat.Input) error {
	in, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encoding battle input: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO battles (id, profession, enemy, enemy_count, seed, input, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, input.ProfessionID, input.EnemyID, input.EnemyCount, int64(input.Seed), in,
		combat.StateRunning.String(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrBattleExists
		}
		return fmt.Errorf("inserting battle: %w", err)
	}
	return nil
}

// SaveResult stores the final result of a battle together with its segments.
// It creates the battle row when Create was never called.
//
// Precondition: id must be non-empty.
// Postcondition: The battle row reflects res and every segment of res is
// stored; previously stored segments are left untouched.
func (r *BattleRepository) SaveResult(ctx context.Context, id string, input combat.Input, res combat.Result) error {
	in, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encoding battle input: %w", err)
	}
	bySource, err := encodeSources(res.DamageBySource)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO battles
			(id, profession, enemy, enemy_count, seed, input, state,
			 total_damage, events, kills, killed, kill_time_ns, elapsed_ns,
			 overkill, partial, damage_by_source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			total_damage = EXCLUDED.total_damage,
			events = EXCLUDED.events,
			kills = EXCLUDED.kills,
			killed = EXCLUDED.killed,
			kill_time_ns = EXCLUDED.kill_time_ns,
			elapsed_ns = EXCLUDED.elapsed_ns,
			overkill = EXCLUDED.overkill,
			partial = EXCLUDED.partial,
			damage_by_source = EXCLUDED.damage_by_source,
			updated_at = NOW()`,
		id, input.ProfessionID, input.EnemyID, input.EnemyCount, int64(input.Seed), in,
		res.State.String(), res.TotalDamage, res.Events, res.Kills, res.Killed,
		int64(res.KillTime), int64(res.Elapsed), res.Overkill, res.Partial, bySource,
	)
	if err != nil {
		return fmt.Errorf("upserting battle %s: %w", id, err)
	}
	if err := appendSegments(ctx, tx, id, res.Segments); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing battle %s: %w", id, err)
	}
	return nil
}

// Get returns the stored summary of battle id.
//
// Postcondition: Returns the record or ErrBattleNotFound.
func (r *BattleRepository) Get(ctx context.Context, id string) (*BattleRecord, error) {
	var (
		rec               BattleRecord
		in, bySource      []byte
		killTime, elapsed int64
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, input, state, total_damage, events, kills, killed,
		       kill_time_ns, elapsed_ns, overkill, partial, damage_by_source,
		       created_at, updated_at
		FROM battles WHERE id = $1`, id,
	).Scan(
		&rec.ID, &in, &rec.State, &rec.TotalDamage, &rec.Events, &rec.Kills, &rec.Killed,
		&killTime, &elapsed, &rec.Overkill, &rec.Partial, &bySource,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("querying battle %s: %w", id, err)
	}
	if err := json.Unmarshal(in, &rec.Input); err != nil {
		return nil, fmt.Errorf("decoding battle %s input: %w", id, err)
	}
	if err := json.Unmarshal(bySource, &rec.DamageBySource); err != nil {
		return nil, fmt.Errorf("decoding battle %s sources: %w", id, err)
	}
	rec.KillTime, rec.Elapsed = time.Duration(killTime), time.Duration(elapsed)
	return &rec, nil
}

// AppendSegments stores closed segments of battle id. Segments are immutable:
// an index that is already stored keeps its first value.
func (r *BattleRepository) AppendSegments(ctx context.Context, id string, segs []combat.Segment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := appendSegments(ctx, tx, id, segs); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing segments of %s: %w", id, err)
	}
	return nil
}

func appendSegments(ctx context.Context, tx pgx.Tx, id string, segs []combat.Segment) error {
	if len(segs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range segs {
		bySource, err := encodeSources(s.DamageBySource)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO battle_segments
				(battle_id, idx, start_ns, end_ns, events, damage, damage_by_source)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (battle_id, idx) DO NOTHING`,
			id, s.Index, int64(s.Start), int64(s.End), s.Events, s.Damage, bySource,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting segments of %s: %w", id, err)
	}
	return nil
}

// ListSegments returns the stored segments of battle id with index >= from,
// in index order.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *BattleRepository) ListSegments(ctx context.Context, id string, from int) ([]combat.Segment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT idx, start_ns, end_ns, events, damage, damage_by_source
		FROM battle_segments WHERE battle_id = $1 AND idx >= $2
		ORDER BY idx ASC`, id, from)
	if err != nil {
		return nil, fmt.Errorf("listing segments of %s: %w", id, err)
	}
	defer rows.Close()

	var out []combat.Segment
	for rows.Next() {
		var (
			s          combat.Segment
			start, end int64
			bySource   []byte
		)
		if err := rows.Scan(&s.Index, &start, &end, &s.Events, &s.Damage, &bySource); err != nil {
			return nil, fmt.Errorf("scanning segment of %s: %w", id, err)
		}
		if err := json.Unmarshal(bySource, &s.DamageBySource); err != nil {
			return nil, fmt.Errorf("decoding segment %d of %s: %w", s.Index, id, err)
		}
		if len(s.DamageBySource) == 0 {
			s.DamageBySource = nil
		}
		s.Start, s.End = time.Duration(start), time.Duration(end)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segments of %s: %w", id, err)
	}
	return out, nil
}

// SaveSnapshot stores data as the latest snapshot of battle id.
//
// Precondition: data is output of combat.Battle.Snapshot.
func (r *BattleRepository) SaveSnapshot(ctx context.Context, id string, data []byte) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO battle_snapshots (battle_id, data) VALUES ($1, $2)
		ON CONFLICT (battle_id) DO UPDATE SET data = EXCLUDED.data, saved_at = NOW()`,
		id, data,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot of %s: %w", id, err)
	}
	return nil
}

// LoadSnapshot returns the latest snapshot of battle id.
//
// Postcondition: Returns the stored bytes unchanged, or ErrBattleNotFound.
func (r *BattleRepository) LoadSnapshot(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(ctx, `SELECT data FROM battle_snapshots WHERE battle_id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("loading snapshot of %s: %w", id, err)
	}
	return data, nil
}

func encodeSources(m map[string]int64) ([]byte, error) {
	if m == nil {
		m = map[string]int64{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding damage by source: %w", err)
	}
	return data, nil
}
