// Package sqlite provides a local SQLite store for battle snapshots and
// results, used by the command-line simulator.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
)

var (
	// ErrSnapshotNotFound is returned when no snapshot is stored under an id.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrResultNotFound is returned when no result is stored under an id.
	ErrResultNotFound = errors.New("result not found")
)

// Store wraps a SQLite connection.
type Store struct {
	conn *sqlx.DB
	now  func() time.Time
}

// Open opens or creates a SQLite database at the given path and creates the
// tables it needs.
//
// Precondition: path must be a writable file path.
// Postcondition: Returns a ready Store or a non-nil error.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn, now: time.Now}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		profession TEXT NOT NULL,
		enemy TEXT NOT NULL,
		state TEXT NOT NULL,
		total_damage INTEGER NOT NULL,
		input_json TEXT NOT NULL,
		result_json TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_saved_at ON snapshots(saved_at);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	ID      string    `json:"id"`
	Size    int       `json:"size"`
	SavedAt time.Time `json:"saved_at"`
}

// SaveSnapshot stores data under id, replacing any earlier snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, id string, data []byte) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO snapshots (id, data, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		id, data, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", id, err)
	}
	return nil
}

// LoadSnapshot returns the snapshot stored under id.
//
// Postcondition: Returns the stored bytes or ErrSnapshotNotFound.
func (s *Store) LoadSnapshot(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.conn.GetContext(ctx, &data, "SELECT data FROM snapshots WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return data, nil
}

// DeleteSnapshot removes the snapshot stored under id. Deleting a missing
// snapshot is not an error.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	return nil
}

// ListSnapshots returns every stored snapshot, most recent first.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	var rows []struct {
		ID      string `db:"id"`
		Size    int    `db:"size"`
		SavedAt int64  `db:"saved_at"`
	}
	err := s.conn.SelectContext(ctx, &rows,
		"SELECT id, length(data) AS size, saved_at FROM snapshots ORDER BY saved_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]SnapshotInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, SnapshotInfo{ID: r.ID, Size: r.Size, SavedAt: time.Unix(0, r.SavedAt)})
	}
	return out, nil
}

// StoredResult is a result together with the input that produced it.
type StoredResult struct {
	ID      string
	Input   combat.Input
	Result  combat.Result
	SavedAt time.Time
}

// SaveResult stores res under id, replacing any earlier result.
func (s *Store) SaveResult(ctx context.Context, id string, input combat.Input, res combat.Result) error {
	in, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	out, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO results (id, profession, enemy, state, total_damage, input_json, result_json, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			total_damage = excluded.total_damage,
			input_json = excluded.input_json,
			result_json = excluded.result_json,
			saved_at = excluded.saved_at`,
		id, input.ProfessionID, input.EnemyID, res.State.String(), res.TotalDamage,
		string(in), string(out), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("save result %s: %w", id, err)
	}
	return nil
}

// GetResult returns the result stored under id.
//
// Postcondition: Returns the stored result or ErrResultNotFound.
func (s *Store) GetResult(ctx context.Context, id string) (*StoredResult, error) {
	var row struct {
		Input   string `db:"input_json"`
		Result  string `db:"result_json"`
		SavedAt int64  `db:"saved_at"`
	}
	err := s.conn.GetContext(ctx, &row, "SELECT input_json, result_json, saved_at FROM results WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("get result %s: %w", id, err)
	}
	out := &StoredResult{ID: id, SavedAt: time.Unix(0, row.SavedAt)}
	if err := json.Unmarshal([]byte(row.Input), &out.Input); err != nil {
		return nil, fmt.Errorf("decode input %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(row.Result), &out.Result); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	return out, nil
}
