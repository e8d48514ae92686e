// Package assembly turns a product definition and a user selection into a
// placed chain of part instances and registers them with a rendering host.
package assembly

import (
	"fmt"

	"github.com/chazu/linkage/pkg/kinematics"
	"github.com/chazu/linkage/pkg/selector"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Angle is a rotation angle in degrees, either constant or read from a named
// configuration parameter at build time.
type Angle struct {
	Degrees float64
	Param   string // readable parameter name; overrides Degrees when set
}

// Deg returns a constant angle.
func Deg(d float64) Angle {
	return Angle{Degrees: d}
}

// Param returns an angle bound to a configuration parameter.
func Param(name string) Angle {
	return Angle{Param: name}
}

// Resolve returns the angle's value for the given parameters.
func (a Angle) Resolve(params selector.Parameters) (float64, error) {
	if a.Param == "" {
		return a.Degrees, nil
	}
	v, ok := params[a.Param]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownParameter, a.Param)
	}
	return v, nil
}

func (a Angle) String() string {
	if a.Param != "" {
		return fmt.Sprintf("(param %q)", a.Param)
	}
	return fmt.Sprintf("%g", a.Degrees)
}

// Rotation is one X, Y, Z rotation triple of the chain.
type Rotation [3]Angle

// Rot returns a constant rotation triple.
func Rot(x, y, z float64) Rotation {
	return Rotation{Deg(x), Deg(y), Deg(z)}
}

// Resolve evaluates the triple.
func (r Rotation) Resolve(params selector.Parameters) (kinematics.Euler, error) {
	var d [3]float64
	for i, a := range r {
		v, err := a.Resolve(params)
		if err != nil {
			return kinematics.Euler{}, err
		}
		d[i] = v
	}
	return kinematics.Euler{X: d[0], Y: d[1], Z: d[2]}, nil
}

// Target is where a step's placement anchor lands: either a fixed world
// point or an output anchor of an earlier instance.
type Target struct {
	Point    v3.Vec
	Instance string
	Anchor   string
}

// At returns a fixed-point target.
func At(p v3.Vec) Target {
	return Target{Point: p}
}

// From returns a target referring to an earlier instance's output anchor.
func From(instance, anchor string) Target {
	return Target{Instance: instance, Anchor: anchor}
}

// IsReference reports whether the target refers to an earlier instance.
func (t Target) IsReference() bool {
	return t.Instance != ""
}

// Step places one instance of a part.
type Step struct {
	Instance  string     // unique name within the definition
	Part      string     // catalog part ID, never a readable name
	Target    Target
	Anchor    string     // placement anchor of the chosen variant
	Rotations []Rotation // chain rotations applied to this instance, in order
	Color     string     // hex color handed to the host
}

// Definition is a product: an ordered chain of steps plus the fixed
// alignment applied to every instance.
type Definition struct {
	Name             string
	InitialRotations []kinematics.Euler
	Steps            []Step
}

// Validate checks the structural invariants that do not depend on the
// catalog: every step names an instance and a part, instance names are
// unique.
func (d *Definition) Validate() error {
	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		if s.Instance == "" {
			return fmt.Errorf("assembly: step %d has no instance name", i+1)
		}
		if s.Part == "" {
			return fmt.Errorf("assembly: step %q has no part", s.Instance)
		}
		if seen[s.Instance] {
			return fmt.Errorf("%w: %q", ErrDuplicateInstance, s.Instance)
		}
		seen[s.Instance] = true
	}
	return nil
}

// Selection is the user-driven input of a build.
type Selection struct {
	Parameters selector.Parameters
	Types      map[string]string // part ID → type ID; parts without an entry use their first type
	Scale      float64           // uniform; zero means 1
}
