package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// document mirrors the on-disk catalog layout:
//
//	parts:
//	  <partID>:
//	    <typeID>: [<variant>, ...]
//	settings:
//	  readableNames: {<key>: <display name>}
//
// JSON catalogs are accepted too since JSON is YAML flow syntax.
type document struct {
	Parts    partTable `yaml:"parts"`
	Settings struct {
		ReadableNames map[string]string `yaml:"readableNames"`
	} `yaml:"settings"`
}

// partTable decodes the parts mapping while keeping key order, which a Go
// map would lose.
type partTable []*Part

func (pt *partTable) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: parts must be a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		part := &Part{ID: n.Content[i].Value}
		types := n.Content[i+1]
		if types.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: part %q must map type names to variant lists", types.Line, part.ID)
		}
		for j := 0; j+1 < len(types.Content); j += 2 {
			t := &Type{ID: types.Content[j].Value}
			if err := types.Content[j+1].Decode(&t.Variants); err != nil {
				return fmt.Errorf("part %q type %q: %w", part.ID, t.ID, err)
			}
			part.Types = append(part.Types, t)
		}
		*pt = append(*pt, part)
	}
	return nil
}

// Parse decodes a catalog from YAML or JSON bytes.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return New(doc.Parts, doc.Settings.ReadableNames)
}

// Load reads and decodes the catalog file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
