// Package content holds the immutable content table battles are built from:
// enemies, professions, procs and status effects.
package content

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
	"github.com/cory-johannsen/idlebattle/internal/game/condition"
	"github.com/cory-johannsen/idlebattle/internal/game/npc"
)

var (
	// ErrUnknownEnemy is returned when an enemy id does not resolve.
	ErrUnknownEnemy = errors.New("unknown enemy")
	// ErrUnknownProfession is returned when a profession id does not resolve.
	ErrUnknownProfession = errors.New("unknown profession")
	// ErrUnknownProc is returned when a proc id does not resolve.
	ErrUnknownProc = errors.New("unknown proc")
)

// Catalog is the content table. It is populated once, before any battle is
// built from it, and read-only afterwards; concurrent reads are safe.
type Catalog struct {
	enemies     map[string]*npc.Template
	professions map[string]*combat.Profession
	procs       map[string]*combat.ProcDef
	procOrder   []string
	effects     *condition.Registry
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{
		enemies:     make(map[string]*npc.Template),
		professions: make(map[string]*combat.Profession),
		procs:       make(map[string]*combat.ProcDef),
		effects:     condition.NewRegistry(),
	}
}

// AddEnemy validates and adds t.
//
// Postcondition: Returns an error if t is invalid or its id is taken.
func (c *Catalog) AddEnemy(t *npc.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, ok := c.enemies[t.ID]; ok {
		return fmt.Errorf("duplicate enemy %q", t.ID)
	}
	c.enemies[t.ID] = t
	return nil
}

// AddProfession validates and adds p.
//
// Postcondition: Returns an error if p is invalid or its id is taken.
func (c *Catalog) AddProfession(p *combat.Profession) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, ok := c.professions[p.ID]; ok {
		return fmt.Errorf("duplicate profession %q", p.ID)
	}
	c.professions[p.ID] = p
	return nil
}

// AddProc validates and adds p.
//
// Postcondition: Returns an error if p is invalid or its id is taken.
func (c *Catalog) AddProc(p *combat.ProcDef) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, ok := c.procs[p.ID]; ok {
		return fmt.Errorf("duplicate proc %q", p.ID)
	}
	c.procs[p.ID] = p
	c.procOrder = append(c.procOrder, p.ID)
	return nil
}

// AddEffect validates and adds e.
//
// Postcondition: Returns an error if e is invalid or its id is taken.
func (c *Catalog) AddEffect(e *condition.EffectDef) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, ok := c.effects.Get(e.ID); ok {
		return fmt.Errorf("duplicate effect %q", e.ID)
	}
	c.effects.Register(e)
	return nil
}

// Enemy implements combat.Catalog.
func (c *Catalog) Enemy(id string) (*npc.Template, error) {
	t, ok := c.enemies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnemy, id)
	}
	return t, nil
}

// Profession implements combat.Catalog.
func (c *Catalog) Profession(id string) (*combat.Profession, error) {
	p, ok := c.professions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfession, id)
	}
	return p, nil
}

// Proc implements combat.Catalog.
func (c *Catalog) Proc(id string) (*combat.ProcDef, error) {
	p, ok := c.procs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProc, id)
	}
	return p, nil
}

// Effect implements combat.Catalog.
func (c *Catalog) Effect(id string) (*condition.EffectDef, bool) {
	return c.effects.Get(id)
}

// EnemyIDs returns every enemy id in sorted order.
func (c *Catalog) EnemyIDs() []string { return sortedKeys(c.enemies) }

// ProfessionIDs returns every profession id in sorted order.
func (c *Catalog) ProfessionIDs() []string { return sortedKeys(c.professions) }

// ProcIDs returns every proc id in insertion order.
func (c *Catalog) ProcIDs() []string { return append([]string(nil), c.procOrder...) }

// Check verifies cross references. Professions naming unknown procs are
// errors; procs naming unknown effects are returned as dangling, since the
// engine skips them at run time.
func (c *Catalog) Check() (dangling []string, err error) {
	for _, id := range c.ProfessionIDs() {
		for _, procID := range c.professions[id].Procs {
			if _, ok := c.procs[procID]; !ok {
				return nil, fmt.Errorf("profession %q: %w: %q", id, ErrUnknownProc, procID)
			}
		}
	}
	for _, id := range c.procOrder {
		if e := c.procs[id].Action.Effect; e != "" {
			if _, ok := c.effects.Get(e); !ok {
				dangling = append(dangling, fmt.Sprintf("proc %q -> effect %q", id, e))
			}
		}
	}
	return dangling, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
