// Package menu holds the static menu catalog and the text matching used to
// resolve spoken item names against it.
package menu

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-go/vai-kiosk/pkg/core"
)

// Item is a single sellable menu entry.
type Item struct {
	Name          string  `yaml:"name" json:"name"`
	LocalizedName string  `yaml:"localized_name" json:"localizedName"`
	UnitPrice     float64 `yaml:"price" json:"price"`
}

// Catalog is an immutable, ordered set of menu items.
type Catalog struct {
	items  []Item
	byName map[string]int
	forms  [][]string
}

type catalogFile struct {
	Items []Item `yaml:"items"`
}

// New validates items and builds a catalog preserving their order.
func New(items []Item) (*Catalog, error) {
	if len(items) == 0 {
		return nil, core.NewCatalogError("catalog has no items")
	}
	c := &Catalog{
		items:  make([]Item, 0, len(items)),
		byName: make(map[string]int, len(items)*2),
		forms:  make([][]string, 0, len(items)),
	}
	for i, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		it.LocalizedName = strings.TrimSpace(it.LocalizedName)
		if it.Name == "" {
			return nil, core.NewCatalogError(fmt.Sprintf("item %d has no name", i))
		}
		if it.UnitPrice <= 0 {
			return nil, core.NewCatalogError(fmt.Sprintf("item %q must have a positive price", it.Name))
		}
		forms := nameForms(it)
		for _, f := range forms {
			if prev, ok := c.byName[f]; ok {
				return nil, core.NewCatalogError(fmt.Sprintf("item %q duplicates %q", it.Name, c.items[prev].Name))
			}
		}
		idx := len(c.items)
		for _, f := range forms {
			c.byName[f] = idx
		}
		c.items = append(c.items, it)
		c.forms = append(c.forms, forms)
	}
	return c, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &core.Error{Type: core.ErrCatalog, Message: "decode catalog", Err: err}
	}
	return New(doc.Items)
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.Error{Type: core.ErrCatalog, Message: "read catalog " + path, Err: err}
	}
	return Parse(data)
}

// Items returns a copy of the catalog items in declaration order.
func (c *Catalog) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Len reports the number of items.
func (c *Catalog) Len() int { return len(c.items) }

// Lookup finds an item by its English or localized name, ignoring case,
// diacritics and a leading Arabic article.
func (c *Catalog) Lookup(name string) (Item, bool) {
	idx, ok := c.byName[Fold(name)]
	if !ok {
		idx, ok = c.byName[StripArticle(Fold(name))]
	}
	if !ok {
		return Item{}, false
	}
	return c.items[idx], true
}

// nameForms lists the folded spellings an item is known by.
func nameForms(it Item) []string {
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		for _, e := range out {
			if e == s {
				return
			}
		}
		out = append(out, s)
	}
	add(Fold(it.Name))
	add(Fold(it.LocalizedName))
	add(StripArticle(Fold(it.LocalizedName)))
	return out
}
