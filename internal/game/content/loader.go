package content

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/condition"
	"github.com/cory-johannsen/idlebattle/internal/game/npc"
)

// Subdirectories read by LoadDirectory.
const (
	EnemiesDir     = "enemies"
	ProfessionsDir = "professions"
	ProcsDir       = "procs"
	EffectsDir     = "effects"
)

// LoadDirectory builds a Catalog from the YAML files under dir. Each of the
// enemies, professions, procs and effects subdirectories is optional; procs
// are registered in file name order.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a cross-checked Catalog, or an error naming the
// first file that fails to parse or validate.
func LoadDirectory(dir string) (*Catalog, error) {
	if st, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("reading content dir %q: %w", dir, err)
	} else if !st.IsDir() {
		return nil, fmt.Errorf("content path %q is not a directory", dir)
	}
	c := New()

	if sub := filepath.Join(dir, EnemiesDir); exists(sub) {
		templates, err := npc.LoadTemplates(sub)
		if err != nil {
			return nil, err
		}
		for _, t := range templates {
			if err := c.AddEnemy(t); err != nil {
				return nil, err
			}
		}
	}

	if sub := filepath.Join(dir, EffectsDir); exists(sub) {
		reg, err := condition.LoadDirectory(sub)
		if err != nil {
			return nil, err
		}
		for _, e := range reg.All() {
			if err := c.AddEffect(e); err != nil {
				return nil, err
			}
		}
	}

	err := eachYAML(filepath.Join(dir, ProcsDir), func(path string, data []byte) error {
		var p combat.ProcDef
		if err := decodeStrict(data, &p); err != nil {
			return fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := c.AddProc(&p); err != nil {
			return fmt.Errorf("loading %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachYAML(filepath.Join(dir, ProfessionsDir), func(path string, data []byte) error {
		var p combat.Profession
		if err := decodeStrict(data, &p); err != nil {
			return fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := c.AddProfession(&p); err != nil {
			return fmt.Errorf("loading %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

func exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// eachYAML calls fn for every *.yaml file in dir, in name order. A missing
// dir is not an error.
func eachYAML(dir string, fn func(path string, data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %q: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %q: %w", path, err)
		}
		if err := fn(path, data); err != nil {
			return err
		}
	}
	return nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
