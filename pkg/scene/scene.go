// Package scene is an in-memory rendering host. It keeps every registered
// mesh with its material and world transform so the host process can
// export or inspect what a renderer would draw.
package scene

import (
	"sync"

	"github.com/chazu/linkage/pkg/assembly"
	"github.com/chazu/linkage/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	"github.com/google/uuid"
)

var _ assembly.Host = (*Scene)(nil)

// Object is one registered mesh.
type Object struct {
	Handle    assembly.Handle
	Mesh      *kernel.Mesh
	Material  assembly.Material
	Transform sdf.M44
}

// Scene is safe for concurrent use.
type Scene struct {
	mu      sync.Mutex
	objects map[assembly.Handle]*Object
	order   []assembly.Handle
}

// New returns an empty scene.
func New() *Scene {
	return &Scene{objects: make(map[assembly.Handle]*Object)}
}

// RegisterMesh adds a mesh and returns its handle.
func (s *Scene) RegisterMesh(mesh *kernel.Mesh, material assembly.Material, transform sdf.M44) assembly.Handle {
	h := assembly.Handle(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[h] = &Object{Handle: h, Mesh: mesh, Material: material, Transform: transform}
	s.order = append(s.order, h)
	return h
}

// UnregisterMesh removes a mesh. Unknown handles are ignored.
func (s *Scene) UnregisterMesh(h assembly.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[h]; !ok {
		return
	}
	delete(s.objects, h)
	for i, o := range s.order {
		if o == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Object returns the registered object for h.
func (s *Scene) Object(h assembly.Handle) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[h]
	if !ok {
		return Object{}, false
	}
	return *o, true
}

// Objects returns the registered objects in registration order.
func (s *Scene) Objects() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Object, len(s.order))
	for i, h := range s.order {
		out[i] = *s.objects[h]
	}
	return out
}

// Len returns the number of registered meshes.
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
