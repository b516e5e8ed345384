// Package catalog exposes the static table of known models per provider:
// context window, capability tags and vendor region. It is used for display
// only and never enforced on requests.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

//go:embed models.toml
var modelsTOML string

// Model describes one (provider, model) pair.
type Model struct {
	Provider         string   `toml:"provider" json:"provider"`
	Name             string   `toml:"name" json:"name"`
	MaxContextTokens int      `toml:"max_context_tokens" json:"max_context_tokens"`
	Capabilities     []string `toml:"capabilities" json:"capabilities"`
	Region           string   `toml:"region" json:"region"`
}

type file struct {
	Models []Model `toml:"model"`
}

// Catalog is immutable after Load.
type Catalog struct {
	models []Model
	index  map[string]Model
}

// Load parses the embedded table.
func Load() (*Catalog, error) {
	return Parse(modelsTOML)
}

// Parse builds a catalog from TOML text.
func Parse(data string) (*Catalog, error) {
	var f file
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}

	c := &Catalog{index: make(map[string]Model, len(f.Models))}
	for _, m := range f.Models {
		if m.Provider == "" || m.Name == "" {
			return nil, fmt.Errorf("catalog: entry missing provider or name: %+v", m)
		}
		k := key(m.Provider, m.Name)
		if _, dup := c.index[k]; dup {
			return nil, fmt.Errorf("catalog: duplicate entry %s", k)
		}
		c.index[k] = m
		c.models = append(c.models, m)
	}
	sort.SliceStable(c.models, func(i, j int) bool {
		return c.models[i].Provider < c.models[j].Provider
	})
	return c, nil
}

func key(provider, model string) string { return provider + "/" + model }

// Lookup returns the entry for (provider, model).
func (c *Catalog) Lookup(provider, model string) (Model, bool) {
	m, ok := c.index[key(provider, model)]
	return m, ok
}

// Models returns every entry, or only those of provider when it is non-empty.
func (c *Catalog) Models(provider string) []Model {
	out := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		if provider == "" || m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}
