package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/content"
	"github.com/cory-johannsen/idlebattle/internal/storage/postgres"
	"github.com/cory-johannsen/idlebattle/internal/testutil"
)

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func testInput() combat.Input {
	return combat.Input{
		Stats:        combat.Stats{AttackPower: 60, SpellPower: 45, CritChance: 0.25, Level: 5},
		ProfessionID: "warrior",
		EnemyID:      "goblin",
		EnemyCount:   2,
		Seed:         1<<63 + 7,
		Limit:        combat.ForDuration(12 * time.Second),
	}
}

func runBattle(t *testing.T, input combat.Input) combat.Result {
	t.Helper()
	res, err := combat.Run(context.Background(), input, content.Default(), combat.DefaultConfig(), nil)
	require.NoError(t, err)
	return res
}

// The container is shared by every subtest; each uses its own battle id.
func TestBattleRepository(t *testing.T) {
	repo := postgres.NewBattleRepository(testutil.NewPool(t))
	ctx := context.Background()

	t.Run("SaveResultAndGet", func(t *testing.T) {
		id := uniqueID("battle")
		input := testInput()
		res := runBattle(t, input)

		require.NoError(t, repo.SaveResult(ctx, id, input, res))
		rec, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, input, rec.Input)
		assert.Equal(t, "completed", rec.State)
		assert.Equal(t, res.TotalDamage, rec.TotalDamage)
		assert.Equal(t, res.Events, rec.Events)
		assert.Equal(t, res.Kills, rec.Kills)
		assert.Equal(t, res.Elapsed, rec.Elapsed)
		assert.Equal(t, res.DamageBySource, rec.DamageBySource)
		assert.False(t, rec.CreatedAt.IsZero())

		segs, err := repo.ListSegments(ctx, id, 0)
		require.NoError(t, err)
		assert.Equal(t, res.Segments, segs)
	})

	t.Run("CreateThenSaveResultUpdates", func(t *testing.T) {
		id := uniqueID("battle")
		input := testInput()
		require.NoError(t, repo.Create(ctx, id, input))
		assert.ErrorIs(t, repo.Create(ctx, id, input), postgres.ErrBattleExists)

		rec, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "running", rec.State)

		res := runBattle(t, input)
		require.NoError(t, repo.SaveResult(ctx, id, input, res))
		rec, err = repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "completed", rec.State)
		assert.Equal(t, res.TotalDamage, rec.TotalDamage)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		_, err := repo.Get(ctx, uniqueID("missing"))
		assert.ErrorIs(t, err, postgres.ErrBattleNotFound)
	})

	t.Run("AppendSegmentsKeepsFirstValue", func(t *testing.T) {
		id := uniqueID("battle")
		res := runBattle(t, testInput())
		require.GreaterOrEqual(t, len(res.Segments), 4)

		require.NoError(t, repo.AppendSegments(ctx, id, res.Segments[:3]))
		altered := res.Segments[2]
		altered.Damage += 1000
		require.NoError(t, repo.AppendSegments(ctx, id, []combat.Segment{altered}))
		require.NoError(t, repo.AppendSegments(ctx, id, res.Segments[3:]))
		require.NoError(t, repo.AppendSegments(ctx, id, nil))

		segs, err := repo.ListSegments(ctx, id, 0)
		require.NoError(t, err)
		assert.Equal(t, res.Segments, segs)

		tail, err := repo.ListSegments(ctx, id, 3)
		require.NoError(t, err)
		assert.Equal(t, res.Segments[3:], tail)
	})

	t.Run("SnapshotRoundTrip", func(t *testing.T) {
		id := uniqueID("battle")
		b, err := combat.NewBattle(testInput(), content.Default(), combat.DefaultConfig(), nil)
		require.NoError(t, err)
		require.NoError(t, b.Advance(ctx, combat.Budget{Until: 5 * time.Second}))
		data, err := b.Snapshot()
		require.NoError(t, err)

		_, err = repo.LoadSnapshot(ctx, id)
		assert.ErrorIs(t, err, postgres.ErrBattleNotFound)

		require.NoError(t, repo.SaveSnapshot(ctx, id, []byte(`{}`)))
		require.NoError(t, repo.SaveSnapshot(ctx, id, data))
		got, err := repo.LoadSnapshot(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, data, got)

		restored, err := combat.Restore(got, content.Default(), combat.DefaultConfig(), nil)
		require.NoError(t, err)
		require.NoError(t, restored.Advance(ctx, combat.Budget{}))
		assert.Equal(t, runBattle(t, testInput()), restored.Result())
	})
}
