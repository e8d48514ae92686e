// Package catalog holds the immutable, pre-parsed description of every
// prefabricated part, its types and the discrete variants of each type.
// Declaration order from the source file is preserved at every level because
// it decides defaults (first type, first value) and selector tie-breaks.
package catalog

import (
	"fmt"
	"slices"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"
)

// SlidingRange is a continuous control for a parameter that is not captured
// by discrete variants (typically an angle).
type SlidingRange struct {
	Min     float64 `yaml:"min" json:"min"`
	Max     float64 `yaml:"max" json:"max"`
	Step    float64 `yaml:"step" json:"step"`
	Default float64 `yaml:"default" json:"default"`
}

// Variant is one concrete, fully parameterized option for a part type.
type Variant struct {
	Name       string             `yaml:"name"`
	Path       string             `yaml:"path"`
	Parameters map[string]float64 `yaml:"parameters"`
	Placement  map[string]v3.Vec  `yaml:"placement"` // where this part attaches to its predecessor
	Output     map[string]v3.Vec  `yaml:"output"`    // where successors may attach

	GUIControlParameters        []string                `yaml:"GUIControlParameters"`
	GUIControlSlidingParameters map[string]SlidingRange `yaml:"GUIControlSlidingParameters"`
}

// Loadable reports whether the variant has geometry to fetch.
func (v *Variant) Loadable() bool {
	return v.Path != ""
}

// ParameterKeys returns the variant's parameter keys in sorted order.
func (v *Variant) ParameterKeys() []string {
	keys := lo.Keys(v.Parameters)
	slices.Sort(keys)
	return keys
}

// Type is one family of variants for a part, e.g. a round or a square rod.
type Type struct {
	ID       string
	Variants []*Variant
}

// Part is an abstract component of the product.
type Part struct {
	ID    string
	Types []*Type
}

// Type returns the type with the given ID.
func (p *Part) Type(id string) (*Type, bool) {
	for _, t := range p.Types {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// DefaultType returns the first declared type, or nil for a part without types.
func (p *Part) DefaultType() *Type {
	if len(p.Types) == 0 {
		return nil
	}
	return p.Types[0]
}

// Catalog is the full set of parts plus the readable-name lookup shared by
// the control surface and the selector.
type Catalog struct {
	Parts         []*Part
	ReadableNames map[string]string

	byID     map[string]*Part
	variants map[string]*Variant
}

// New indexes parts and validates them. The returned catalog must not be
// modified afterwards.
func New(parts []*Part, readableNames map[string]string) (*Catalog, error) {
	c := &Catalog{
		Parts:         parts,
		ReadableNames: readableNames,
		byID:          make(map[string]*Part, len(parts)),
		variants:      make(map[string]*Variant),
	}
	if c.ReadableNames == nil {
		c.ReadableNames = map[string]string{}
	}
	for _, p := range parts {
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate part %q", p.ID)
		}
		c.byID[p.ID] = p
		for _, t := range p.Types {
			if err := validateType(p.ID, t); err != nil {
				return nil, err
			}
			for _, v := range t.Variants {
				if prev, dup := c.variants[v.Name]; dup && prev != v {
					return nil, fmt.Errorf("catalog: variant name %q is used more than once", v.Name)
				}
				c.variants[v.Name] = v
			}
		}
	}
	return c, nil
}

// validateType checks that every variant of a type exposes the same
// parameter key set.
func validateType(partID string, t *Type) error {
	if len(t.Variants) == 0 {
		return nil
	}
	want := t.Variants[0].ParameterKeys()
	for _, v := range t.Variants {
		if v.Name == "" {
			return fmt.Errorf("catalog: %s/%s: variant without a name", partID, t.ID)
		}
		if got := v.ParameterKeys(); !slices.Equal(got, want) {
			return fmt.Errorf("catalog: %s/%s: variant %q has parameters %v, want %v",
				partID, t.ID, v.Name, got, want)
		}
	}
	return nil
}

// Part returns the part with the given ID.
func (c *Catalog) Part(id string) (*Part, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Variant returns the variant with the given name across all parts.
func (c *Catalog) Variant(name string) (*Variant, bool) {
	v, ok := c.variants[name]
	return v, ok
}

// Readable translates an internal key to its display name. Keys without an
// entry are returned unchanged.
func (c *Catalog) Readable(key string) string {
	if name, ok := c.ReadableNames[key]; ok {
		return name
	}
	return key
}

// Loadable returns every variant that has geometry to fetch, in declaration
// order. This is the denominator of load progress.
func (c *Catalog) Loadable() []*Variant {
	var out []*Variant
	for _, p := range c.Parts {
		for _, t := range p.Types {
			for _, v := range t.Variants {
				if v.Loadable() {
					out = append(out, v)
				}
			}
		}
	}
	return lo.UniqBy(out, func(v *Variant) string { return v.Name })
}
