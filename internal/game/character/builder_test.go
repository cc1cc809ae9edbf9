package character_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/idlebattle/internal/game/character"
	"github.com/cory-johannsen/idlebattle/internal/game/combat"
)

const ariaYAML = `
id: aria
name: Aria
level: 10
profession: warrior
base:
  attack_power: 120
  crit_chance: 0.15
  haste_pct: 10
gear:
  - name: Honed Axe
    attack_power: 35
    armor_pen_flat: 40
  - name: Swift Gloves
    haste_pct: 8
    crit_chance: 0.05
    crit_multiplier: 2.5
`

func TestLoadFromBytes_ResolvesGear(t *testing.T) {
	c, err := character.LoadFromBytes([]byte(ariaYAML))
	require.NoError(t, err)
	s := c.Resolve()
	assert.InDelta(t, 155.0, s.AttackPower, 1e-9)
	assert.InDelta(t, 0.2, s.CritChance, 1e-9)
	assert.InDelta(t, 18.0, s.HastePct, 1e-9)
	assert.InDelta(t, 40.0, s.ArmorPenFlat, 1e-9)
	assert.Equal(t, 2.5, s.CritMultiplier)
	assert.Equal(t, 10, s.Level)
}

func TestLoadFromBytes_UnknownField(t *testing.T) {
	_, err := character.LoadFromBytes([]byte(ariaYAML + "mana: 5\n"))
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]character.Character{
		"empty id":         {Name: "A", Level: 1, Profession: "warrior"},
		"empty name":       {ID: "a", Level: 1, Profession: "warrior"},
		"empty profession": {ID: "a", Name: "A", Level: 1},
		"level zero":       {ID: "a", Name: "A", Profession: "warrior"},
		"negative power":   {ID: "a", Name: "A", Level: 1, Profession: "warrior", Base: combat.Stats{AttackPower: -1}},
	}
	for name, c := range cases {
		name, c := name, c
		t.Run(name, func(t *testing.T) {
			assert.Error(t, c.Validate())
		})
	}
}

func TestSeed_StablePerSalt(t *testing.T) {
	c := &character.Character{ID: "aria"}
	assert.Equal(t, c.Seed("battle"), c.Seed("battle"))
	assert.NotEqual(t, c.Seed("battle"), c.Seed("offline"))
}

func TestInput_CarriesResolvedStats(t *testing.T) {
	c, err := character.LoadFromBytes([]byte(ariaYAML))
	require.NoError(t, err)
	in := c.Input("dummy", 2, 7, combat.ForDuration(0))
	assert.Equal(t, "warrior", in.ProfessionID)
	assert.Equal(t, "dummy", in.EnemyID)
	assert.Equal(t, 2, in.EnemyCount)
	assert.Equal(t, uint64(7), in.Seed)
	assert.Equal(t, c.Resolve(), in.Stats)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aria.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ariaYAML), 0o644))
	c, err := character.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Aria", c.Name)

	_, err = character.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProperty_Resolve_CapsCritAndPen(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(rt, "gear")
		c := character.Character{ID: "x", Name: "X", Level: 1, Profession: "warrior"}
		for i := 0; i < n; i++ {
			var g character.GearPiece
			g.CritChance = rapid.Float64Range(0, 0.5).Draw(rt, "crit")
			g.ArmorPenPct = rapid.Float64Range(0, 0.5).Draw(rt, "pen")
			c.Gear = append(c.Gear, g)
		}
		s := c.Resolve()
		assert.LessOrEqual(rt, s.CritChance, 1.0)
		assert.LessOrEqual(rt, s.ArmorPenPct, 1.0)
		assert.NoError(rt, c.Validate())
	})
}
