package catalog

import (
	"slices"
	"testing"
)

func TestControlsDefaultTypes(t *testing.T) {
	c := mustParse(t, rodCatalog)
	folders := c.Controls(nil, ControlOptions{})
	if len(folders) != 2 {
		t.Fatalf("got %d folders, want 2", len(folders))
	}

	rod := folders[0]
	if rod.Type != "Square" {
		t.Errorf("rod type = %q, want Square", rod.Type)
	}
	if !slices.Equal(rod.Types, []string{"Square", "Round"}) {
		t.Errorf("rod types = %v", rod.Types)
	}
	if len(rod.Controls) != 1 {
		t.Fatalf("rod controls = %+v", rod.Controls)
	}
	ctl := rod.Controls[0]
	if ctl.Label != "Rod Height" || ctl.Min != 100 || ctl.Max != 200 || ctl.Step != 100 {
		t.Errorf("height control = %+v", ctl)
	}

	capFolder := folders[1]
	if capFolder.Types != nil {
		t.Errorf("single-type part should offer no type choice, got %v", capFolder.Types)
	}
	if len(capFolder.Controls) != 1 || !capFolder.Controls[0].Sliding || capFolder.Controls[0].Default != 10 {
		t.Errorf("cap controls = %+v", capFolder.Controls)
	}
}

func TestControlsSingleValueParameterHidden(t *testing.T) {
	c := mustParse(t, rodCatalog)
	folders := c.Controls(map[string]string{"Rod": "Round"}, ControlOptions{})
	if folders[0].Type != "Round" {
		t.Fatalf("type = %q, want Round", folders[0].Type)
	}
	if len(folders[0].Controls) != 0 {
		t.Errorf("Round has one height value, want no discrete control, got %+v", folders[0].Controls)
	}
}

func TestControlsExclusions(t *testing.T) {
	c := mustParse(t, rodCatalog)
	folders := c.Controls(nil, ControlOptions{
		ExcludeParts:      []string{"Cap"},
		ExcludeParameters: []string{"Rod Height"},
	})
	if len(folders) != 1 || folders[0].Part != "Rod" {
		t.Fatalf("folders = %+v", folders)
	}
	if len(folders[0].Controls) != 0 {
		t.Errorf("excluded parameter still offered: %+v", folders[0].Controls)
	}
}

func TestDefaultParameters(t *testing.T) {
	c := mustParse(t, rodCatalog)
	params := c.DefaultParameters()
	want := map[string]float64{
		"Rod Height": 100,
		"thickness":  5,
		"Cap Tilt":   10,
	}
	if len(params) != len(want) {
		t.Fatalf("DefaultParameters() = %v, want %v", params, want)
	}
	for k, v := range want {
		if params[k] != v {
			t.Errorf("params[%q] = %v, want %v", k, params[k], v)
		}
	}
}

func TestDefaultTypes(t *testing.T) {
	c := mustParse(t, rodCatalog)
	types := c.DefaultTypes()
	if types["Rod"] != "Square" || types["Cap"] != "Flat" {
		t.Errorf("DefaultTypes() = %v", types)
	}
}

func TestSmallestGap(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{3}, 0},
		{"uniform", []float64{300, 350, 400}, 50},
		{"uneven", []float64{10, 30, 35, 100}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := smallestGap(tt.values); got != tt.want {
				t.Errorf("smallestGap(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

const unorderedCatalog = `
parts:
  Rod:
    Square:
      - name: Rod_300
        path: box:10x10x300
        parameters: {height: 300}
        GUIControlParameters: [height]
      - name: Rod_100
        path: box:10x10x100
        parameters: {height: 100}
        GUIControlParameters: [height]
      - name: Rod_200
        path: box:10x10x200
        parameters: {height: 200}
        GUIControlParameters: [height]
      - name: Rod_100_Heavy
        path: box:12x12x100
        parameters: {height: 100}
        GUIControlParameters: [height]
`

func TestControlsValuesSortedAscending(t *testing.T) {
	c := mustParse(t, unorderedCatalog)
	folders := c.Controls(nil, ControlOptions{})
	if len(folders) != 1 || len(folders[0].Controls) != 1 {
		t.Fatalf("folders = %+v", folders)
	}
	ctl := folders[0].Controls[0]
	if !slices.Equal(ctl.Values, []float64{100, 200, 300}) {
		t.Errorf("values = %v, want [100 200 300]", ctl.Values)
	}
	if ctl.Min != 100 || ctl.Max != 300 || ctl.Step != 100 {
		t.Errorf("min/max/step = %v/%v/%v, want 100/300/100", ctl.Min, ctl.Max, ctl.Step)
	}
	// The default is still the first declared variant's value.
	if got := c.DefaultParameters()["height"]; got != 300 {
		t.Errorf("default height = %v, want 300", got)
	}
}
