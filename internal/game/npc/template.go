// Package npc provides enemy template definitions and their loot tables.
package npc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Template defines an enemy archetype loaded from YAML.
type Template struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Level       int     `yaml:"level"`
	MaxHP       int64   `yaml:"max_hp"`
	Armor       float64 `yaml:"armor"`
	Resist      float64 `yaml:"resist"`
	// Shielded enemies multiply their effective armor.
	Shielded bool `yaml:"shielded"`
	// Experience is awarded per kill.
	Experience int64 `yaml:"experience"`
	// RespawnDelay is the duration string (e.g. "5s") before the next
	// encounter with this enemy begins during offline settlement. Empty means
	// the configured default.
	RespawnDelay string     `yaml:"respawn_delay"`
	Loot         *LootTable `yaml:"loot"`
}

// Validate checks that the template satisfies basic invariants.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, Level >= 1,
// MaxHP >= 1, defenses and experience are non-negative, RespawnDelay parses,
// and the loot table is valid; returns an error on the first violation otherwise.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("npc template: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("npc template %q: name must not be empty", t.ID)
	}
	if t.Level < 1 {
		return fmt.Errorf("npc template %q: level must be >= 1", t.ID)
	}
	if t.MaxHP < 1 {
		return fmt.Errorf("npc template %q: max_hp must be >= 1", t.ID)
	}
	if t.Armor < 0 || t.Resist < 0 {
		return fmt.Errorf("npc template %q: armor and resist must be >= 0", t.ID)
	}
	if t.Experience < 0 {
		return fmt.Errorf("npc template %q: experience must be >= 0", t.ID)
	}
	if t.RespawnDelay != "" {
		if _, err := time.ParseDuration(t.RespawnDelay); err != nil {
			return fmt.Errorf("npc template %q: respawn_delay %q is not a valid duration: %w", t.ID, t.RespawnDelay, err)
		}
	}
	if t.Loot != nil {
		if err := t.Loot.Validate(); err != nil {
			return fmt.Errorf("npc template %q: %w", t.ID, err)
		}
	}
	return nil
}

// Respawn returns the parsed respawn delay, or def when unset.
//
// Precondition: t must have passed Validate.
func (t *Template) Respawn(def time.Duration) time.Duration {
	if t.RespawnDelay == "" {
		return def
	}
	d, _ := time.ParseDuration(t.RespawnDelay)
	return d
}

// LoadTemplateFromBytes parses a single enemy template from raw YAML bytes.
// Unknown fields are rejected.
//
// Postcondition: Returns a validated *Template, or an error.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	var tmpl Template
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&tmpl); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates or an error on the first parse or validate
// failure; on error, the partial result is discarded.
func LoadTemplates(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading npc dir %q: %w", dir, err)
	}

	var templates []*Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		tmpl, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}
