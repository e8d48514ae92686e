// Package sdfx implements kernel.Source using the github.com/deadsy/sdfx
// SDF-based CAD library. Paths ending in .stl are read from disk; the
// procedural forms "box:XxYxZ" and "cylinder:HEIGHTxRADIUS" are meshed with
// marching cubes, which lets catalogs and tests run without asset files.
package sdfx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chazu/linkage/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface checks.
var (
	_ kernel.Source    = (*Source)(nil)
	_ kernel.RawSource = (*Source)(nil)
)

// defaultMeshCells controls marching cubes tessellation resolution for
// procedural primitives.
const defaultMeshCells = 64

// Source loads geometry relative to a root directory.
type Source struct {
	Root  string
	Cells int
}

// New returns a Source rooted at root.
func New(root string) *Source {
	return &Source{Root: root, Cells: defaultMeshCells}
}

// Load returns the mesh for path.
func (s *Source) Load(ctx context.Context, path string) (*kernel.Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind, spec, _ := strings.Cut(path, ":")
	switch kind {
	case "box":
		d, err := parseDims(spec, 3)
		if err != nil {
			return nil, fmt.Errorf("sdfx: %s: %w", path, err)
		}
		solid, err := sdf.Box3D(v3.Vec{X: d[0], Y: d[1], Z: d[2]}, 0)
		if err != nil {
			return nil, fmt.Errorf("sdfx: %s: %w", path, err)
		}
		return s.tessellate(solid), nil
	case "cylinder":
		d, err := parseDims(spec, 2)
		if err != nil {
			return nil, fmt.Errorf("sdfx: %s: %w", path, err)
		}
		solid, err := sdf.Cylinder3D(d[0], d[1], 0)
		if err != nil {
			return nil, fmt.Errorf("sdfx: %s: %w", path, err)
		}
		return s.tessellate(solid), nil
	}

	triangles, err := render.LoadSTL(s.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("sdfx: load %s: %w", path, err)
	}
	if len(triangles) == 0 {
		return nil, fmt.Errorf("sdfx: load %s: no triangles", path)
	}
	return toMesh(triangles), nil
}

// LoadRaw reads an auxiliary asset file unchanged.
func (s *Source) LoadRaw(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("sdfx: %w", err)
	}
	return data, nil
}

func (s *Source) resolve(path string) string {
	if filepath.IsAbs(path) || s.Root == "" {
		return path
	}
	return filepath.Join(s.Root, path)
}

// tessellate converts a solid to a triangle mesh using marching cubes.
func (s *Source) tessellate(solid sdf.SDF3) *kernel.Mesh {
	cells := s.Cells
	if cells <= 0 {
		cells = defaultMeshCells
	}
	renderer := render.NewMarchingCubesUniform(cells)
	return toMesh(render.ToTriangles(solid, renderer))
}

// parseDims parses n positive dimensions separated by 'x'.
func parseDims(spec string, n int) ([]float64, error) {
	fields := strings.Split(spec, "x")
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d dimensions, got %q", n, spec)
	}
	dims := make([]float64, n)
	for i, f := range fields {
		d, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("dimension %d: %w", i+1, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("dimension %d must be positive, got %g", i+1, d)
		}
		dims[i] = d
	}
	return dims, nil
}

// toMesh flattens triangles into the kernel mesh layout with per-face
// normals.
func toMesh[T ~[3]v3.Vec](triangles []*T) *kernel.Mesh {
	numVerts := len(triangles) * 3

	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		t := [3]v3.Vec(*tri)
		n := t[1].Sub(t[0]).Cross(t[2].Sub(t[0])).Normalize()
		nx, ny, nz := float32(n.X), float32(n.Y), float32(n.Z)

		for j := 0; j < 3; j++ {
			v := t[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}
}
