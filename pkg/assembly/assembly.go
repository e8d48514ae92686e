package assembly

import (
	"github.com/chazu/linkage/pkg/catalog"
	"github.com/chazu/linkage/pkg/kernel"
	"github.com/chazu/linkage/pkg/kinematics"
)

// Instance is one placed occurrence of a part.
type Instance struct {
	Name      string
	Part      string
	Type      string
	Variant   *catalog.Variant
	Placement kinematics.Placement
	Material  Material
	Mesh      *kernel.Mesh // nil until the variant's geometry is cached
	Handle    Handle       // empty unless registered with the host
}

// Loaded reports whether the instance has its geometry.
func (i *Instance) Loaded() bool {
	return i.Mesh != nil
}

// Assembly is the built product: instances in step order, indexed by name.
type Assembly struct {
	Product   string
	Instances []*Instance

	byName map[string]*Instance
}

func newAssembly(product string, n int) *Assembly {
	return &Assembly{
		Product:   product,
		Instances: make([]*Instance, 0, n),
		byName:    make(map[string]*Instance, n),
	}
}

func (a *Assembly) add(inst *Instance) {
	a.Instances = append(a.Instances, inst)
	a.byName[inst.Name] = inst
}

// Instance returns the instance with the given step name.
func (a *Assembly) Instance(name string) (*Instance, bool) {
	inst, ok := a.byName[name]
	return inst, ok
}

// Handles returns the host handles of the registered instances.
func (a *Assembly) Handles() []Handle {
	var hs []Handle
	for _, inst := range a.Instances {
		if inst.Handle != "" {
			hs = append(hs, inst.Handle)
		}
	}
	return hs
}

// Pending returns the names of instances still waiting for geometry.
func (a *Assembly) Pending() []string {
	var names []string
	for _, inst := range a.Instances {
		if !inst.Loaded() {
			names = append(names, inst.Name)
		}
	}
	return names
}

// Complete reports whether every instance has its geometry.
func (a *Assembly) Complete() bool {
	return len(a.Pending()) == 0
}
