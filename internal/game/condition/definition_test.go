package condition_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/idlebattle/internal/game/condition"
)

func TestRegistry_Get_Found(t *testing.T) {
	reg := condition.NewRegistry()
	def := &condition.EffectDef{ID: "frenzy", Name: "Frenzy", Target: condition.TargetSelf}
	reg.Register(def)
	got, ok := reg.Get("frenzy")
	require.True(t, ok)
	assert.Same(t, def, got)
}

func TestRegistry_Get_NotFound(t *testing.T) {
	_, ok := condition.NewRegistry().Get("missing")
	assert.False(t, ok)

	var nilReg *condition.Registry
	_, ok = nilReg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_All_SortedByID(t *testing.T) {
	reg := condition.NewRegistry()
	reg.Register(&condition.EffectDef{ID: "b", Target: condition.TargetSelf})
	reg.Register(&condition.EffectDef{ID: "a", Target: condition.TargetEnemy})
	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestEffectDef_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     condition.EffectDef
		wantErr bool
	}{
		{"ok self", condition.EffectDef{ID: "x", Target: condition.TargetSelf, Duration: time.Second}, false},
		{"ok dot", condition.EffectDef{ID: "x", Target: condition.TargetEnemy, TickDamage: 5, TickInterval: time.Second}, false},
		{"empty id", condition.EffectDef{Target: condition.TargetSelf}, true},
		{"bad target", condition.EffectDef{ID: "x", Target: "ally"}, true},
		{"negative duration", condition.EffectDef{ID: "x", Target: condition.TargetSelf, Duration: -time.Second}, true},
		{"negative stacks", condition.EffectDef{ID: "x", Target: condition.TargetSelf, MaxStacks: -1}, true},
		{"self dot", condition.EffectDef{ID: "x", Target: condition.TargetSelf, TickDamage: 5, TickInterval: time.Second}, true},
		{"dot without interval", condition.EffectDef{ID: "x", Target: condition.TargetEnemy, TickDamage: 5}, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bleed.yaml"), []byte(`
id: bleed
name: Bleed
target: enemy
duration: 6s
tick_damage: 12
tick_interval: 2s
damage_type: physical
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	reg, err := condition.LoadDirectory(dir)
	require.NoError(t, err)
	def, ok := reg.Get("bleed")
	require.True(t, ok)
	assert.Equal(t, 6*time.Second, def.Duration)
	assert.Equal(t, 2*time.Second, def.TickInterval)
	assert.True(t, def.IsDot())
	assert.Len(t, reg.All(), 1)
}

func TestLoadDirectory_UnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: x\ntarget: self\nbogus: 1\n"), 0o644))
	_, err := condition.LoadDirectory(dir)
	assert.Error(t, err)
}

func TestLoadDirectory_InvalidRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: x\ntarget: nobody\n"), 0o644))
	_, err := condition.LoadDirectory(dir)
	assert.ErrorContains(t, err, "bad.yaml")
}

func TestLoadDirectory_MissingDir(t *testing.T) {
	_, err := condition.LoadDirectory(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
