// Package catalog loads the formula reference data and narrows it to the
// formulas eligible for one optimization call.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/haroldofalcao/optinutri/pkg/constants"
	"github.com/haroldofalcao/optinutri/pkg/optimization"
)

//go:embed formulas.yaml
var defaultCatalog []byte

var (
	// ErrEmptyCatalog is returned when no formula survives the filters.
	ErrEmptyCatalog = errors.New("no formula available under current filters")

	// ErrDuplicateFormula is returned when two records share an id.
	ErrDuplicateFormula = errors.New("duplicate formula id")
)

type catalogFile struct {
	Formulas []optimization.Formula `yaml:"formulas"`
}

// Catalog is an ordered, read-only list of formulas indexed by id.
type Catalog struct {
	formulas []optimization.Formula
	index    map[string]int
}

// New validates formulas and builds a catalog preserving their order.
func New(formulas []optimization.Formula) (*Catalog, error) {
	c := &Catalog{
		formulas: make([]optimization.Formula, 0, len(formulas)),
		index:    make(map[string]int, len(formulas)),
	}
	for _, f := range formulas {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("invalid catalog entry: %w", err)
		}
		if _, exists := c.index[f.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFormula, f.ID)
		}
		c.index[f.ID] = len(c.formulas)
		c.formulas = append(c.formulas, f)
	}
	return c, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(doc.Formulas) == 0 {
		return nil, fmt.Errorf("catalog has no formulas")
	}
	return New(doc.Formulas)
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Len returns the number of formulas.
func (c *Catalog) Len() int {
	return len(c.formulas)
}

// Formulas returns a copy of every formula in catalog order.
func (c *Catalog) Formulas() []optimization.Formula {
	out := make([]optimization.Formula, len(c.formulas))
	copy(out, c.formulas)
	return out
}

// Lookup returns the formula with the given id.
func (c *Catalog) Lookup(id string) (optimization.Formula, bool) {
	i, ok := c.index[id]
	if !ok {
		return optimization.Formula{}, false
	}
	return c.formulas[i], true
}

// EmulsionTypes returns the distinct emulsion types of visible formulas, sorted.
func (c *Catalog) EmulsionTypes() []string {
	return c.distinct(func(f optimization.Formula) string { return f.EmulsionType })
}

// Routes returns the distinct administration routes of visible formulas, sorted.
func (c *Catalog) Routes() []string {
	return c.distinct(func(f optimization.Formula) string { return f.Via })
}

func (c *Catalog) distinct(field func(optimization.Formula) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range c.formulas {
		v := field(f)
		if f.Hidden || v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Filter narrows formulas to the ones eligible for a call. Each filter passes
// everything through when empty or equal to constants.FilterAll. Hidden
// formulas are kept only when selected by id. Catalog order is preserved.
func Filter(formulas []optimization.Formula, selectedIDs []string, emulsionType, via string) []optimization.Formula {
	selected := selectionSet(selectedIDs)

	out := make([]optimization.Formula, 0, len(formulas))
	for _, f := range formulas {
		if selected != nil {
			if !selected[f.ID] {
				continue
			}
		} else if f.Hidden {
			continue
		}
		if !matches(emulsionType, f.EmulsionType) || !matches(via, f.Via) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Filter applies the package Filter to the catalog's formulas.
func (c *Catalog) Filter(selectedIDs []string, emulsionType, via string) []optimization.Formula {
	return Filter(c.formulas, selectedIDs, emulsionType, via)
}

func selectionSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == constants.FilterAll {
			return nil
		}
		set[id] = true
	}
	return set
}

func matches(filter, value string) bool {
	return filter == "" || filter == constants.FilterAll || filter == value
}
