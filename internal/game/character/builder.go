package character

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/dice"
)

// Validate checks the sheet.
//
// Postcondition: Returns nil iff ID, Name and Profession are non-empty,
// Level >= 1 and the resolved stats are valid.
func (c *Character) Validate() error {
	if c.ID == "" {
		return errors.New("character id must not be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("character %q: name must not be empty", c.ID)
	}
	if c.Profession == "" {
		return fmt.Errorf("character %q: profession must not be empty", c.ID)
	}
	if c.Level < 1 {
		return fmt.Errorf("character %q: level must be >= 1", c.ID)
	}
	if err := c.Resolve().Validate(); err != nil {
		return fmt.Errorf("character %q: %w", c.ID, err)
	}
	return nil
}

// Resolve sums base stats and gear bonuses. Crit chance and armor
// penetration percentage are capped at 1; the level is the character level.
//
// Postcondition: Returns stats with CritChance and ArmorPenPct <= 1.
func (c *Character) Resolve() combat.Stats {
	s := c.Base
	for _, g := range c.Gear {
		s.AttackPower += g.AttackPower
		s.SpellPower += g.SpellPower
		s.CritChance += g.CritChance
		s.HastePct += g.HastePct
		s.ArmorPenFlat += g.ArmorPenFlat
		s.ArmorPenPct += g.ArmorPenPct
		s.Armor += g.Armor
		if g.CritMultiplier > s.CritMultiplier {
			s.CritMultiplier = g.CritMultiplier
		}
	}
	if s.CritChance > 1 {
		s.CritChance = 1
	}
	if s.ArmorPenPct > 1 {
		s.ArmorPenPct = 1
	}
	s.Level = c.Level
	return s
}

// Seed derives a stable battle seed for the character under salt.
func (c *Character) Seed(salt string) uint64 {
	return dice.SeedFromString(c.ID, salt)
}

// Input builds a battle input for the character against count enemies of enemyID.
//
// Postcondition: Returns an Input carrying the resolved stats, profession and procs.
func (c *Character) Input(enemyID string, count int, seed uint64, limit combat.Limit) combat.Input {
	return combat.Input{
		Stats:        c.Resolve(),
		ProfessionID: c.Profession,
		EnemyID:      enemyID,
		EnemyCount:   count,
		Procs:        append([]string(nil), c.Procs...),
		Seed:         seed,
		Limit:        limit,
	}
}

// LoadFromBytes parses and validates one character sheet. Unknown fields are rejected.
func LoadFromBytes(data []byte) (*Character, error) {
	var c Character
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing character YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile reads a character sheet from path.
func LoadFile(path string) (*Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	c, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", path, err)
	}
	return c, nil
}
