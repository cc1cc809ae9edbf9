package content

import (
	"time"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/condition"
	"github.com/cory-johannsen/idlebattle/internal/game/npc"
)

// DummyID is the fixed-health training target present in Default.
const DummyID = "dummy"

// Default returns the built-in content table used when no content
// directory is configured.
//
// Postcondition: Returns a fresh Catalog on every call.
func Default() *Catalog {
	c := New()
	for _, e := range defaultEffects() {
		mustAdd(c.AddEffect(e))
	}
	for _, p := range defaultProcs() {
		mustAdd(c.AddProc(p))
	}
	for _, t := range defaultEnemies() {
		mustAdd(c.AddEnemy(t))
	}
	for _, p := range defaultProfessions() {
		mustAdd(c.AddProfession(p))
	}
	return c
}

func mustAdd(err error) {
	if err != nil {
		panic("content: invalid built-in definition: " + err.Error())
	}
}

func defaultEnemies() []*npc.Template {
	return []*npc.Template{
		{
			ID:          DummyID,
			Name:        "Training Dummy",
			Description: "A straw target that never fights back.",
			Level:       1,
			MaxHP:       500,
		},
		{
			ID:         "goblin",
			Name:       "Goblin Scrapper",
			Level:      3,
			MaxHP:      300,
			Armor:      200,
			Resist:     50,
			Experience: 12,
			Loot: &npc.LootTable{
				Currency: "2d4+1",
				Items: []npc.ItemDrop{
					{ItemID: "scrap_metal", Chance: 0.5, Quantity: "1d3"},
					{ItemID: "goblin_ear", Chance: 0.1},
				},
			},
		},
		{
			ID:           "bulwark",
			Name:         "Iron Bulwark",
			Level:        12,
			MaxHP:        4000,
			Armor:        900,
			Resist:       150,
			Shielded:     true,
			Experience:   80,
			RespawnDelay: "10s",
			Loot: &npc.LootTable{
				Currency: "4d6+10",
				Items:    []npc.ItemDrop{{ItemID: "iron_plate", Chance: 0.25, Quantity: "1d2"}},
			},
		},
	}
}

func defaultProfessions() []*combat.Profession {
	return []*combat.Profession{
		{
			ID:   "warrior",
			Name: "Warrior",
			Basic: combat.TrackDef{
				Interval:    2 * time.Second,
				Coefficient: 1.0,
				Scaling:     combat.ScalingAttack,
				DamageType:  combat.DamagePhysical,
			},
			Special: &combat.TrackDef{
				Interval:    6 * time.Second,
				Coefficient: 1.5,
				Scaling:     combat.ScalingAttack,
				DamageType:  combat.DamagePhysical,
				Targeting:   combat.Targeting{Mode: combat.TargetCleave, MaxTargets: 3, Distribute: combat.DistributeFull},
			},
			Procs: []string{"rend", "sunder_strike"},
		},
		{
			ID:   "mage",
			Name: "Mage",
			Basic: combat.TrackDef{
				Interval:    2500 * time.Millisecond,
				Coefficient: 1.0,
				Scaling:     combat.ScalingSpell,
				DamageType:  combat.DamageMagic,
			},
			Special: &combat.TrackDef{
				Interval:    8 * time.Second,
				Coefficient: 3.0,
				Scaling:     combat.ScalingSpell,
				DamageType:  combat.DamageMagic,
				Targeting:   combat.Targeting{Mode: combat.TargetAll, Distribute: combat.DistributeSplit},
			},
			Procs: []string{"arcane_surge", "static_discharge"},
		},
	}
}

func defaultProcs() []*combat.ProcDef {
	return []*combat.ProcDef{
		{
			ID:       "rend",
			Name:     "Rend",
			Trigger:  combat.TriggerOnHit,
			Chance:   0.2,
			Cooldown: 4 * time.Second,
			Source:   combat.SourceBasic,
			Action:   combat.ProcAction{Effect: "bleed"},
		},
		{
			ID:          "sunder_strike",
			Name:        "Sunder Strike",
			Trigger:     combat.TriggerOnCrit,
			Chance:      0.5,
			DamageTypes: []combat.DamageType{combat.DamagePhysical},
			Action:      combat.ProcAction{Effect: "sunder"},
		},
		{
			ID:      "arcane_surge",
			Name:    "Arcane Surge",
			Trigger: combat.TriggerRPPM,
			Rate:    3,
			Action:  combat.ProcAction{Effect: "quickening"},
		},
		{
			ID:       "static_discharge",
			Name:     "Static Discharge",
			Trigger:  combat.TriggerOnCrit,
			Chance:   1.0,
			Cooldown: 2 * time.Second,
			Action: combat.ProcAction{
				Damage:     40,
				DamageType: combat.DamageTrue,
				Targeting:  combat.Targeting{Mode: combat.TargetAll, Distribute: combat.DistributeFull},
			},
		},
	}
}

func defaultEffects() []*condition.EffectDef {
	return []*condition.EffectDef{
		{
			ID:           "bleed",
			Name:         "Bleed",
			Target:       condition.TargetEnemy,
			Duration:     6 * time.Second,
			MaxStacks:    3,
			TickDamage:   12,
			TickInterval: 2 * time.Second,
			DamageType:   "physical",
		},
		{
			ID:             "sunder",
			Name:           "Sunder",
			Target:         condition.TargetEnemy,
			Duration:       8 * time.Second,
			MaxStacks:      5,
			DamageTakenPct: 4,
		},
		{
			ID:       "quickening",
			Name:     "Quickening",
			Target:   condition.TargetSelf,
			Duration: 5 * time.Second,
			HastePct: 25,
		},
	}
}
