// Package kinematics composes the world placement of one part in a
// kinematic chain: the part's placement anchor is moved onto a target point
// after the chain's accumulated rotations, and its output anchors are carried
// along so the next part can attach to them.
package kinematics

import (
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Euler is one rotation triple in degrees, applied as intrinsic X then Y
// then Z.
type Euler struct {
	X, Y, Z float64
}

// Rotation returns Rx·Ry·Rz for a single triple.
func Rotation(e Euler) sdf.M44 {
	return sdf.RotateX(sdf.DtoR(e.X)).
		Mul(sdf.RotateY(sdf.DtoR(e.Y))).
		Mul(sdf.RotateZ(sdf.DtoR(e.Z)))
}

// Fold accumulates the triples in order, R ← R·Rx·Ry·Rz per triple. This is
// not one combined Euler rotation: each triple rotates the frame left by the
// previous ones. An empty list folds to the identity.
func Fold(steps []Euler) sdf.M44 {
	m := sdf.Identity3d()
	for _, e := range steps {
		m = m.Mul(Rotation(e))
	}
	return m
}

// Input is everything Compose needs for one part.
type Input struct {
	Anchor           v3.Vec            // local placement anchor
	Outputs          map[string]v3.Vec // local output anchors
	Rotations        []Euler           // chain rotations up to this part
	InitialRotations []Euler           // fixed alignment to the host's axes
	Scale            float64
	Target           v3.Vec // world point the anchor must land on
}

// Placement is the composed result for one part.
type Placement struct {
	Rotation    sdf.M44 // folded chain rotations
	Translation v3.Vec
	Transform   sdf.M44 // Scale · Rinit · Translate(T) · R
	Outputs     map[string]v3.Vec
}

// Compose places a part. Translation and output anchors live in the chain
// frame (rotations only, no initial alignment or scale); only the final
// transform handed to the renderer adds those.
func Compose(in Input) Placement {
	r := Fold(in.Rotations)
	rInit := Fold(in.InitialRotations)

	t := in.Target.Sub(r.MulPosition(in.Anchor))

	outputs := make(map[string]v3.Vec, len(in.Outputs))
	for name, o := range in.Outputs {
		outputs[name] = r.MulPosition(o).Add(t)
	}

	s := in.Scale
	transform := sdf.Scale3d(v3.Vec{X: s, Y: s, Z: s}).
		Mul(rInit).
		Mul(sdf.Translate3d(t)).
		Mul(r)

	return Placement{
		Rotation:    r,
		Translation: t,
		Transform:   transform,
		Outputs:     outputs,
	}
}
