// Package catalog holds the versioned definition of inspection categories and
// their checklist item templates.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/ukydev/truck-inspection/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var ErrUnknownCategory = errors.New("unknown category")

// Template describes one checklist item as shipped in the catalog.
type Template struct {
	ID    int             `yaml:"id" json:"id"`
	Title string          `yaml:"title" json:"title"`
	Kind  models.ItemKind `yaml:"kind" json:"kind"`
}

// Category is a named, ordered group of item templates.
type Category struct {
	ID    string     `yaml:"id" json:"id"`
	Name  string     `yaml:"name" json:"name"`
	Items []Template `yaml:"items" json:"items"`
}

type file struct {
	Version    string     `yaml:"version"`
	Categories []Category `yaml:"categories"`
}

type itemRef struct {
	category string
	template Template
}

// Catalog is immutable after Load.
type Catalog struct {
	version    string
	categories []Category
	index      map[string]int
	items      map[int]itemRef
}

// Load parses and validates a YAML catalog.
func Load(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if strings.TrimSpace(f.Version) == "" {
		return nil, errors.New("catalog version is required")
	}
	if len(f.Categories) == 0 {
		return nil, errors.New("catalog has no categories")
	}

	c := &Catalog{
		version: f.Version,
		index:   make(map[string]int, len(f.Categories)),
		items:   make(map[int]itemRef),
	}
	odometers := 0
	for i, cat := range f.Categories {
		if cat.ID == "" {
			return nil, fmt.Errorf("category %d has no id", i)
		}
		if _, dup := c.index[cat.ID]; dup {
			return nil, fmt.Errorf("duplicate category %q", cat.ID)
		}
		if len(cat.Items) == 0 {
			return nil, fmt.Errorf("category %q has no items", cat.ID)
		}
		for j := range cat.Items {
			t := &cat.Items[j]
			if t.Kind == "" {
				t.Kind = models.KindJudgement
			}
			if t.Kind != models.KindJudgement && t.Kind != models.KindOdometer {
				return nil, fmt.Errorf("item %d: unknown kind %q", t.ID, t.Kind)
			}
			if t.Kind == models.KindOdometer {
				odometers++
			}
			if prev, dup := c.items[t.ID]; dup {
				return nil, fmt.Errorf("item id %d used by both %q and %q", t.ID, prev.category, cat.ID)
			}
			c.items[t.ID] = itemRef{category: cat.ID, template: *t}
		}
		c.index[cat.ID] = len(c.categories)
		c.categories = append(c.categories, cat)
	}
	if odometers > 1 {
		return nil, fmt.Errorf("catalog declares %d odometer items, at most one allowed", odometers)
	}
	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Load(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Version identifies the catalog revision.
func (c *Catalog) Version() string { return c.version }

// Categories returns the categories in display order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		cat.Items = append([]Template(nil), cat.Items...)
		out[i] = cat
	}
	return out
}

// CategoryIDs returns the category ids in display order.
func (c *Catalog) CategoryIDs() []string {
	ids := make([]string, len(c.categories))
	for i, cat := range c.categories {
		ids[i] = cat.ID
	}
	return ids
}

// HasCategory reports whether id names a catalog category.
func (c *Catalog) HasCategory(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Category looks up a single category.
func (c *Catalog) Category(id string) (Category, error) {
	i, ok := c.index[id]
	if !ok {
		return Category{}, fmt.Errorf("%w: %s", ErrUnknownCategory, id)
	}
	return c.categories[i], nil
}

// ItemsFor returns the ordered templates of a category.
func (c *Catalog) ItemsFor(categoryID string) ([]Template, error) {
	cat, err := c.Category(categoryID)
	if err != nil {
		return nil, err
	}
	out := make([]Template, len(cat.Items))
	copy(out, cat.Items)
	return out, nil
}

// Template finds an item template by its global id.
func (c *Catalog) Template(id int) (Template, string, bool) {
	ref, ok := c.items[id]
	return ref.template, ref.category, ok
}

// Seed builds fresh, unevaluated draft items for a category.
func (c *Catalog) Seed(categoryID string) ([]models.ChecklistItem, error) {
	templates, err := c.ItemsFor(categoryID)
	if err != nil {
		return nil, err
	}
	items := make([]models.ChecklistItem, len(templates))
	for i, t := range templates {
		items[i] = models.ChecklistItem{
			ID:       t.ID,
			Title:    t.Title,
			Category: categoryID,
			Kind:     t.Kind,
			Photos:   []string{},
		}
	}
	return items, nil
}
