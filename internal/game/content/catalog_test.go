package content_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/condition"
	"github.com/cory-johannsen/idlebattle/internal/game/content"
	"github.com/cory-johannsen/idlebattle/internal/game/npc"
)

func TestDefault_ResolvesEverything(t *testing.T) {
	c := content.Default()
	dangling, err := c.Check()
	require.NoError(t, err)
	assert.Empty(t, dangling)

	dummy, err := c.Enemy(content.DummyID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), dummy.MaxHP)
	assert.Zero(t, dummy.Armor)

	for _, id := range c.ProfessionIDs() {
		p, err := c.Profession(id)
		require.NoError(t, err)
		for _, procID := range p.Procs {
			_, err := c.Proc(procID)
			assert.NoError(t, err, procID)
		}
	}
}

func TestDefault_FreshCopies(t *testing.T) {
	a, b := content.Default(), content.Default()
	ea, _ := a.Enemy(content.DummyID)
	eb, _ := b.Enemy(content.DummyID)
	assert.NotSame(t, ea, eb)
}

func TestLookups_Unknown(t *testing.T) {
	c := content.New()
	_, err := c.Enemy("nope")
	assert.ErrorIs(t, err, content.ErrUnknownEnemy)
	_, err = c.Profession("nope")
	assert.ErrorIs(t, err, content.ErrUnknownProfession)
	_, err = c.Proc("nope")
	assert.ErrorIs(t, err, content.ErrUnknownProc)
	_, ok := c.Effect("nope")
	assert.False(t, ok)
}

func TestAdd_RejectsDuplicatesAndInvalid(t *testing.T) {
	c := content.New()
	enemy := &npc.Template{ID: "e", Name: "E", Level: 1, MaxHP: 1}
	require.NoError(t, c.AddEnemy(enemy))
	assert.Error(t, c.AddEnemy(enemy))
	assert.Error(t, c.AddEnemy(&npc.Template{ID: "bad"}))

	proc := &combat.ProcDef{ID: "p", Trigger: combat.TriggerOnHit, Chance: 1, Action: combat.ProcAction{Effect: "x"}}
	require.NoError(t, c.AddProc(proc))
	assert.Error(t, c.AddProc(proc))

	eff := &condition.EffectDef{ID: "x", Target: condition.TargetSelf}
	require.NoError(t, c.AddEffect(eff))
	assert.Error(t, c.AddEffect(eff))

	assert.Error(t, c.AddProfession(&combat.Profession{ID: "p"}))
}

func TestCheck_DanglingEffectIsReportedNotFatal(t *testing.T) {
	c := content.New()
	require.NoError(t, c.AddProc(&combat.ProcDef{ID: "p", Trigger: combat.TriggerOnHit, Chance: 1, Action: combat.ProcAction{Effect: "ghost"}}))
	dangling, err := c.Check()
	require.NoError(t, err)
	assert.Equal(t, []string{`proc "p" -> effect "ghost"`}, dangling)
}

func TestCheck_UnknownProfessionProcIsFatal(t *testing.T) {
	c := content.New()
	require.NoError(t, c.AddProfession(&combat.Profession{
		ID:    "w",
		Basic: combat.TrackDef{Interval: 1, Coefficient: 1, Scaling: combat.ScalingAttack, DamageType: combat.DamagePhysical},
		Procs: []string{"missing"},
	}))
	_, err := c.Check()
	assert.ErrorIs(t, err, content.ErrUnknownProc)
}

// repoContentDir returns the content directory at the repository root.
func repoContentDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "content")
}

func TestLoadDirectory_RepositoryContentMatchesDefault(t *testing.T) {
	loaded, err := content.LoadDirectory(repoContentDir(t))
	require.NoError(t, err)
	def := content.Default()

	assert.Equal(t, def.EnemyIDs(), loaded.EnemyIDs())
	assert.Equal(t, def.ProfessionIDs(), loaded.ProfessionIDs())
	assert.Equal(t, def.ProcIDs(), loaded.ProcIDs())
	for _, id := range def.EnemyIDs() {
		want, _ := def.Enemy(id)
		got, _ := loaded.Enemy(id)
		assert.Equal(t, want.MaxHP, got.MaxHP, id)
		assert.Equal(t, want.Armor, got.Armor, id)
		assert.Equal(t, want.Shielded, got.Shielded, id)
	}
	for _, id := range def.ProcIDs() {
		want, _ := def.Proc(id)
		got, _ := loaded.Proc(id)
		assert.Equal(t, want, got, id)
	}
	for _, id := range def.ProfessionIDs() {
		want, _ := def.Profession(id)
		got, _ := loaded.Profession(id)
		assert.Equal(t, want, got, id)
	}
}

func TestLoadDirectory_MissingSubdirsAllowed(t *testing.T) {
	c, err := content.LoadDirectory(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, c.EnemyIDs())
}

func TestLoadDirectory_BadProcNamesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, content.ProcsDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, content.ProcsDir, "bad.yaml"), []byte("id: p\ntrigger: sometimes\n"), 0o644))
	_, err := content.LoadDirectory(dir)
	assert.ErrorContains(t, err, "bad.yaml")
}

func TestLoadDirectory_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := content.LoadDirectory(path)
	assert.Error(t, err)
}
