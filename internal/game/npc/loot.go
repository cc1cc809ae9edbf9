package npc

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/cory-johannsen/idlebattle/internal/game/dice"
)

// ItemDrop defines a single item entry in a loot table with a drop chance.
// Quantity is a dice expression; empty means 1.
type ItemDrop struct {
	ItemID   string  `yaml:"item"`
	Chance   float64 `yaml:"chance"`
	Quantity string  `yaml:"quantity"`
}

// LootTable defines the rewards for killing an enemy. Currency is a dice
// expression such as "2d6+3"; empty means none.
type LootTable struct {
	Currency string     `yaml:"currency"`
	Items    []ItemDrop `yaml:"items"`
}

// Validate checks that the loot table satisfies its invariants.
//
// Precondition: lt must not be nil.
// Postcondition: Returns nil iff every expression parses with a non-negative
// minimum and every item has an id and a chance in (0, 1]; an empty loot
// table is valid.
func (lt *LootTable) Validate() error {
	if lt.Currency != "" {
		expr, err := dice.Parse(lt.Currency)
		if err != nil {
			return fmt.Errorf("loot table: currency: %w", err)
		}
		if minimum(expr) < 0 {
			return fmt.Errorf("loot table: currency %q can be negative", lt.Currency)
		}
	}
	for i, item := range lt.Items {
		if item.ItemID == "" {
			return fmt.Errorf("loot table: item[%d] must have a non-empty item id", i)
		}
		if item.Chance <= 0 || item.Chance > 1.0 {
			return fmt.Errorf("loot table: item[%d] chance must be in (0, 1.0], got %f", i, item.Chance)
		}
		if item.Quantity != "" {
			expr, err := dice.Parse(item.Quantity)
			if err != nil {
				return fmt.Errorf("loot table: item[%d] quantity: %w", i, err)
			}
			if minimum(expr) < 1 {
				return fmt.Errorf("loot table: item[%d] quantity %q can be below 1", i, item.Quantity)
			}
		}
	}
	return nil
}

// minimum returns the lowest total expr can roll.
func minimum(expr dice.Expression) int {
	n := expr.Count
	if expr.KeepHighest > 0 {
		n = expr.KeepHighest
	}
	return n + expr.Modifier
}

func (d ItemDrop) quantity() dice.Expression {
	if d.Quantity == "" {
		return dice.Expression{Raw: "1", Modifier: 1}
	}
	return dice.MustParse(d.Quantity)
}

// LootItem represents a single item instance in a loot result.
type LootItem struct {
	ItemDefID  string `json:"item"`
	InstanceID string `json:"instance_id"`
	Quantity   int    `json:"quantity"`
}

// LootResult holds the generated loot from a single kill.
type LootResult struct {
	Currency int        `json:"currency"`
	Items    []LootItem `json:"items,omitempty"`
}

// GenerateLoot rolls loot from lt using r. Currency is rolled first, then
// each item draws one chance value and, on success, its quantity.
//
// Precondition: lt must have passed Validate(); r must be non-nil.
// Postcondition: Each dropped item carries a fresh instance id and a
// quantity >= 1.
func GenerateLoot(lt LootTable, r *dice.Roller) LootResult {
	var result LootResult
	if lt.Currency != "" {
		result.Currency = r.Roll(dice.MustParse(lt.Currency)).Total()
	}
	for _, item := range lt.Items {
		if !r.Chance(item.Chance) {
			continue
		}
		result.Items = append(result.Items, LootItem{
			ItemDefID:  item.ItemID,
			InstanceID: uuid.New().String(),
			Quantity:   r.Roll(item.quantity()).Total(),
		})
	}
	return result
}

// ExpectedLoot is the mean reward of one kill.
type ExpectedLoot struct {
	Currency float64            `json:"currency"`
	Items    map[string]float64 `json:"items,omitempty"`
}

// Expected returns the mean of lt: currency mean plus chance × mean
// quantity per item.
//
// Precondition: lt must have passed Validate().
func Expected(lt LootTable) ExpectedLoot {
	var out ExpectedLoot
	if lt.Currency != "" {
		out.Currency = dice.MustParse(lt.Currency).Mean()
	}
	for _, item := range lt.Items {
		if out.Items == nil {
			out.Items = make(map[string]float64)
		}
		out.Items[item.ItemID] += item.Chance * item.quantity().Mean()
	}
	return out
}

// ItemIDs returns the distinct item ids of lt in sorted order.
func (lt *LootTable) ItemIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range lt.Items {
		if !seen[item.ItemID] {
			seen[item.ItemID] = true
			out = append(out, item.ItemID)
		}
	}
	sort.Strings(out)
	return out
}
