package workflow

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/zjrosen/stagehook/communityworkflows"
	"github.com/zjrosen/stagehook/internal/config"
	"github.com/zjrosen/stagehook/internal/log"
)

// Catalog is the immutable, ordered set of registered workflows.
type Catalog struct {
	defs      []*Definition
	byTrigger map[string]*Definition
}

// NewCatalog registers defs in order. A trigger registered twice keeps its first
// definition; later ones are logged and skipped.
func NewCatalog(defs ...*Definition) *Catalog {
	c := &Catalog{byTrigger: make(map[string]*Definition, len(defs))}
	for _, def := range defs {
		if def == nil {
			continue
		}
		if existing, dup := c.byTrigger[def.Trigger]; dup {
			log.Warn(log.CatConfig, "duplicate workflow trigger ignored",
				"trigger", def.Trigger,
				"kept", existing.Source.String(),
				"skipped", def.Source.String())
			continue
		}
		c.byTrigger[def.Trigger] = def
		c.defs = append(c.defs, def)
	}
	return c
}

// NewCatalogWithConfig builds the catalog from the built-ins, the community workflows
// enabled in cfg and the user workflow directory, in that precedence order.
func NewCatalogWithConfig(cfg config.WorkflowsConfig) (*Catalog, error) {
	return newCatalogFrom(communityworkflows.RegistryFS(), cfg)
}

func newCatalogFrom(community fs.FS, cfg config.WorkflowsConfig) (*Catalog, error) {
	builtins, err := LoadBuiltins()
	if err != nil {
		return nil, fmt.Errorf("loading built-in workflows: %w", err)
	}

	defs := append([]*Definition{}, builtins...)
	defs = append(defs, LoadCommunity(community, cfg.Community)...)
	defs = append(defs, LoadUserDir(cfg.UserDir)...)

	return NewCatalog(defs...), nil
}

// Lookup returns the first registered workflow whose trigger occurs in text.
func (c *Catalog) Lookup(text string) (*Definition, bool) {
	for _, def := range c.defs {
		if strings.Contains(text, def.Trigger) {
			return def, true
		}
	}
	return nil, false
}

// Get returns the workflow registered under trigger.
func (c *Catalog) Get(trigger string) (*Definition, bool) {
	def, ok := c.byTrigger[trigger]
	return def, ok
}

// List returns all workflows in registration order.
func (c *Catalog) List() []*Definition {
	out := make([]*Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// ListBySource returns the workflows registered from src, in registration order.
func (c *Catalog) ListBySource(src Source) []*Definition {
	var out []*Definition
	for _, def := range c.defs {
		if def.Source == src {
			out = append(out, def)
		}
	}
	return out
}
