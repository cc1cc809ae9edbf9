// Package character defines the character sheet and the pure logic that
// resolves it into combat statistics.
package character

import "github.com/cory-johannsen/idlebattle/internal/game/combat"

// GearPiece is one equipped item and the stat bonuses it grants. Level is
// ignored for gear.
type GearPiece struct {
	Name         string `yaml:"name"`
	combat.Stats `yaml:",inline"`
}

// Character is a player character's combat-relevant state.
type Character struct {
	ID         string       `yaml:"id"`
	Name       string       `yaml:"name"`
	Level      int          `yaml:"level"`
	Profession string       `yaml:"profession"`
	Base       combat.Stats `yaml:"base"`
	Gear       []GearPiece  `yaml:"gear"`
	// Procs lists proc ids granted on top of the profession's own.
	Procs []string `yaml:"procs"`
}
