package assembly

import (
	"github.com/chazu/linkage/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
)

// Handle identifies a mesh registered with a host.
type Handle string

// Material is the surface description handed to the host.
type Material struct {
	Color string `json:"color"`
}

// Host is the rendering side. The payload is passed through untouched
// together with its world transform.
type Host interface {
	RegisterMesh(mesh *kernel.Mesh, material Material, transform sdf.M44) Handle
	UnregisterMesh(h Handle)
}
