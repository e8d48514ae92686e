package catalog

import (
	"slices"

	"github.com/samber/lo"
)

// Control describes one adjustable parameter for the control surface.
type Control struct {
	Parameter string    `json:"parameter"` // internal key
	Label     string    `json:"label"`     // readable name, also the key in configuration parameters
	Sliding   bool      `json:"sliding"`
	Values    []float64 `json:"values,omitempty"` // distinct discrete values, ascending; empty for sliding controls
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Step      float64   `json:"step"`
	Default   float64   `json:"default"`
}

// Folder groups the controls of one part for its currently selected type.
type Folder struct {
	Part     string    `json:"part"`
	Label    string    `json:"label"`
	Type     string    `json:"type"`
	Types    []string  `json:"types,omitempty"` // selectable types, present only when there is a choice
	Controls []Control `json:"controls"`
}

// ControlOptions filters what the control surface offers.
type ControlOptions struct {
	ExcludeParts      []string // part IDs
	ExcludeParameters []string // readable parameter names
}

// Controls derives the control-surface model from the catalog. types maps
// part ID to selected type ID; parts without an entry use their first type.
// A discrete parameter is offered only when its type lists it as a GUI
// control and its variants actually take more than one value.
func (c *Catalog) Controls(types map[string]string, opts ControlOptions) []Folder {
	var folders []Folder
	for _, p := range c.Parts {
		if slices.Contains(opts.ExcludeParts, p.ID) {
			continue
		}
		t := p.DefaultType()
		if sel, ok := p.Type(types[p.ID]); ok {
			t = sel
		}
		if t == nil || len(t.Variants) == 0 {
			continue
		}
		f := Folder{Part: p.ID, Label: c.Readable(p.ID), Type: t.ID}
		if len(p.Types) > 1 {
			f.Types = lo.Map(p.Types, func(t *Type, _ int) string { return t.ID })
		}

		first := t.Variants[0]
		for _, key := range first.ParameterKeys() {
			label := c.Readable(key)
			if slices.Contains(opts.ExcludeParameters, label) || !slices.Contains(first.GUIControlParameters, key) {
				continue
			}
			values := distinctValues(t.Variants, key)
			if len(values) < 2 {
				continue
			}
			f.Controls = append(f.Controls, Control{
				Parameter: key,
				Label:     label,
				Values:    values,
				Min:       values[0],
				Max:       values[len(values)-1],
				Step:      smallestGap(values),
				Default:   first.Parameters[key],
			})
		}

		sliding := lo.Keys(first.GUIControlSlidingParameters)
		slices.Sort(sliding)
		for _, key := range sliding {
			label := c.Readable(key)
			if slices.Contains(opts.ExcludeParameters, label) {
				continue
			}
			r := first.GUIControlSlidingParameters[key]
			f.Controls = append(f.Controls, Control{
				Parameter: key,
				Label:     label,
				Sliding:   true,
				Min:       r.Min,
				Max:       r.Max,
				Step:      r.Step,
				Default:   r.Default,
			})
		}
		folders = append(folders, f)
	}
	return folders
}

// DefaultParameters returns the initial configuration: every discrete
// parameter takes its value from the first variant of its part's first type
// and every sliding parameter its declared default. The first part to
// declare a readable name wins.
func (c *Catalog) DefaultParameters() map[string]float64 {
	params := make(map[string]float64)
	for _, p := range c.Parts {
		t := p.DefaultType()
		if t == nil || len(t.Variants) == 0 {
			continue
		}
		first := t.Variants[0]
		for _, key := range first.ParameterKeys() {
			name := c.Readable(key)
			if _, seen := params[name]; !seen {
				params[name] = first.Parameters[key]
			}
		}
		sliding := lo.Keys(first.GUIControlSlidingParameters)
		slices.Sort(sliding)
		for _, key := range sliding {
			name := c.Readable(key)
			if _, seen := params[name]; !seen {
				params[name] = first.GUIControlSlidingParameters[key].Default
			}
		}
	}
	return params
}

// DefaultTypes maps every part to its first declared type.
func (c *Catalog) DefaultTypes() map[string]string {
	types := make(map[string]string, len(c.Parts))
	for _, p := range c.Parts {
		if t := p.DefaultType(); t != nil {
			types[p.ID] = t.ID
		}
	}
	return types
}

func distinctValues(variants []*Variant, key string) []float64 {
	values := lo.Uniq(lo.Map(variants, func(v *Variant, _ int) float64 { return v.Parameters[key] }))
	slices.Sort(values)
	return values
}

// smallestGap is the slider step for a sorted, distinct value list.
func smallestGap(values []float64) float64 {
	gap := 0.0
	for i := 1; i < len(values); i++ {
		if d := values[i] - values[i-1]; gap == 0 || d < gap {
			gap = d
		}
	}
	return gap
}
