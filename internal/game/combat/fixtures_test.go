package combat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/condition"
	"github.com/cory-johannsen/idlebattle/internal/game/content"
	"github.com/cory-johannsen/idlebattle/internal/game/npc"
)

// testCatalog holds a 2s single-target physical profession ("tester"), a
// 500 HP unarmored dummy, and whatever procs and effects are passed in.
func testCatalog(t testing.TB, procs []*combat.ProcDef, effects ...*condition.EffectDef) *content.Catalog {
	t.Helper()
	c := content.New()
	require.NoError(t, c.AddEnemy(&npc.Template{ID: "dummy", Name: "Dummy", Level: 1, MaxHP: 500}))
	require.NoError(t, c.AddEnemy(&npc.Template{ID: "goblin", Name: "Goblin", Level: 3, MaxHP: 300, Armor: 200, Resist: 50}))
	require.NoError(t, c.AddProfession(&combat.Profession{
		ID:   "tester",
		Name: "Tester",
		Basic: combat.TrackDef{
			Interval:    2 * time.Second,
			Coefficient: 1,
			Scaling:     combat.ScalingAttack,
			DamageType:  combat.DamagePhysical,
		},
	}))
	require.NoError(t, c.AddProfession(&combat.Profession{
		ID:   "duelist",
		Name: "Duelist",
		Basic: combat.TrackDef{
			Interval:    1500 * time.Millisecond,
			Coefficient: 0.8,
			Scaling:     combat.ScalingAttack,
			DamageType:  combat.DamagePhysical,
		},
		Special: &combat.TrackDef{
			Interval:    5 * time.Second,
			Coefficient: 1.2,
			Scaling:     combat.ScalingSpell,
			DamageType:  combat.DamageMagic,
			Targeting:   combat.Targeting{Mode: combat.TargetCleave, MaxTargets: 2, Distribute: combat.DistributeSplit},
		},
	}))
	for _, e := range effects {
		require.NoError(t, c.AddEffect(e))
	}
	for _, p := range procs {
		require.NoError(t, c.AddProc(p))
	}
	return c
}

func testInput(ap float64, limit combat.Limit) combat.Input {
	return combat.Input{
		Stats:        combat.Stats{AttackPower: ap, Level: 1},
		ProfessionID: "tester",
		EnemyID:      "dummy",
		EnemyCount:   1,
		Seed:         12345,
		Limit:        limit,
	}
}

func unbounded() combat.Limit { return combat.Limit{Mode: combat.LimitUnbounded} }

// richCatalog exercises every mechanism at once: crits, on-hit and on-crit
// procs, an rppm haste buff, a DoT and a damage-taken debuff.
func richCatalog(t testing.TB) *content.Catalog {
	t.Helper()
	effects := []*condition.EffectDef{
		{ID: "bleed", Target: condition.TargetEnemy, Duration: 6 * time.Second, MaxStacks: 3, TickDamage: 9, TickInterval: 1500 * time.Millisecond, DamageType: "physical"},
		{ID: "sunder", Target: condition.TargetEnemy, Duration: 5 * time.Second, MaxStacks: 4, DamageTakenPct: 6},
		{ID: "quickening", Target: condition.TargetSelf, Duration: 4 * time.Second, HastePct: 40},
	}
	procs := []*combat.ProcDef{
		{ID: "rend", Trigger: combat.TriggerOnHit, Chance: 0.35, Cooldown: 3 * time.Second, Source: combat.SourceBasic, Action: combat.ProcAction{Effect: "bleed"}},
		{ID: "sunder_strike", Trigger: combat.TriggerOnCrit, Chance: 0.6, IncludeDots: true, Action: combat.ProcAction{Effect: "sunder"}},
		{ID: "surge", Trigger: combat.TriggerRPPM, Rate: 8, Action: combat.ProcAction{Effect: "quickening"}},
		{ID: "shock", Trigger: combat.TriggerOnHit, Chance: 0.25, Cooldown: 2 * time.Second, DamageTypes: []combat.DamageType{combat.DamageMagic},
			Action: combat.ProcAction{Damage: 30, DamageType: combat.DamageMagic, Targeting: combat.Targeting{Mode: combat.TargetAll, Distribute: combat.DistributeSplit}}},
	}
	return testCatalog(t, procs, effects...)
}

func richInput(seed uint64, limit combat.Limit) combat.Input {
	return combat.Input{
		Stats: combat.Stats{
			AttackPower:  90,
			SpellPower:   70,
			CritChance:   0.3,
			HastePct:     15,
			ArmorPenFlat: 20,
			ArmorPenPct:  0.1,
			Level:        5,
		},
		ProfessionID: "duelist",
		EnemyID:      "goblin",
		EnemyCount:   3,
		Procs:        []string{"rend", "sunder_strike", "surge", "shock"},
		Seed:         seed,
		Limit:        limit,
	}
}
