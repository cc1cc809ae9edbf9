package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/content"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "battles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testInput(seed uint64) combat.Input {
	return combat.Input{
		Stats:        combat.Stats{AttackPower: 60, SpellPower: 45, CritChance: 0.25, Level: 5},
		ProfessionID: "warrior",
		EnemyID:      "goblin",
		EnemyCount:   2,
		Seed:         seed,
		Limit:        combat.ForDuration(10 * time.Second),
	}
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battles.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(context.Background(), "a", []byte("x")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	data, err := s.LoadSnapshot(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestStore_SnapshotRoundTripRestores(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cfg := combat.DefaultConfig()

	b, err := combat.NewBattle(testInput(5), content.Default(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, b.Advance(ctx, combat.Budget{Until: 4 * time.Second}))
	data, err := b.Snapshot()
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(ctx, "run-1", data))

	got, err := s.LoadSnapshot(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	restored, err := combat.Restore(got, content.Default(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Advance(ctx, combat.Budget{}))
	want, err := combat.Run(ctx, testInput(5), content.Default(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, want, restored.Result())
}

func TestStore_SnapshotReplaceListDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.SaveSnapshot(ctx, "old", []byte("1")))
	now = now.Add(time.Minute)
	require.NoError(t, s.SaveSnapshot(ctx, "new", []byte("22")))
	now = now.Add(time.Minute)
	require.NoError(t, s.SaveSnapshot(ctx, "old", []byte("333")))

	list, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "old", list[0].ID)
	assert.Equal(t, 3, list[0].Size)
	assert.True(t, list[0].SavedAt.Equal(now))
	assert.Equal(t, "new", list[1].ID)

	require.NoError(t, s.DeleteSnapshot(ctx, "old"))
	require.NoError(t, s.DeleteSnapshot(ctx, "old"))
	_, err = s.LoadSnapshot(ctx, "old")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestStore_ResultRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	input := testInput(9)
	res, err := combat.Run(ctx, input, content.Default(), combat.DefaultConfig(), nil)
	require.NoError(t, err)
	require.Positive(t, res.TotalDamage)

	_, err = s.GetResult(ctx, "r")
	assert.ErrorIs(t, err, ErrResultNotFound)

	require.NoError(t, s.SaveResult(ctx, "r", input, combat.Result{State: combat.StateCancelled}))
	require.NoError(t, s.SaveResult(ctx, "r", input, res))
	got, err := s.GetResult(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "r", got.ID)
	assert.Equal(t, input, got.Input)
	assert.Equal(t, res, got.Result)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, s.SaveSnapshot(ctx, string(rune('a'+i)), []byte{byte(j)}))
			}
		}(i)
	}
	wg.Wait()
	list, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 8)
}
