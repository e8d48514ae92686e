// Package tessellate bakes placed meshes into world space. The placement
// engine never touches vertex data; this is the host-side step that turns
// a cached local mesh plus its world transform into exportable geometry.
package tessellate

import (
	"github.com/chazu/linkage/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Placed is a local mesh with the transform that puts it into the world.
type Placed struct {
	Name      string
	Mesh      *kernel.Mesh
	Transform sdf.M44
}

// World returns one world-space mesh per placed item, in order. Items
// without geometry are skipped. The input meshes are not modified.
func World(items []Placed) []*kernel.Mesh {
	var meshes []*kernel.Mesh
	for _, it := range items {
		if it.Mesh == nil || it.Mesh.IsEmpty() {
			continue
		}
		m := Transform(it.Mesh, it.Transform)
		m.PartName = it.Name
		meshes = append(meshes, m)
	}
	return meshes
}

// Transform returns a copy of m with positions moved by t and normals
// rotated by t's linear part and re-normalized. Indices are shared.
func Transform(m *kernel.Mesh, t sdf.M44) *kernel.Mesh {
	origin := t.MulPosition(v3.Vec{})
	out := &kernel.Mesh{
		Vertices: make([]float32, len(m.Vertices)),
		Normals:  make([]float32, len(m.Normals)),
		Indices:  m.Indices,
		PartName: m.PartName,
	}
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		p := t.MulPosition(vec(m.Vertices[i:]))
		put(out.Vertices[i:], p)
	}
	for i := 0; i+2 < len(m.Normals); i += 3 {
		n := t.MulPosition(vec(m.Normals[i:])).Sub(origin)
		if n.Length() > 0 {
			n = n.Normalize()
		}
		put(out.Normals[i:], n)
	}
	return out
}

func vec(f []float32) v3.Vec {
	return v3.Vec{X: float64(f[0]), Y: float64(f[1]), Z: float64(f[2])}
}

func put(f []float32, v v3.Vec) {
	f[0], f[1], f[2] = float32(v.X), float32(v.Y), float32(v.Z)
}
