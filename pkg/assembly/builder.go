package assembly

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/chazu/linkage/pkg/catalog"
	"github.com/chazu/linkage/pkg/kernel"
	"github.com/chazu/linkage/pkg/kinematics"
	"github.com/chazu/linkage/pkg/selector"
)

var (
	ErrUnknownPart       = errors.New("assembly: unknown part")
	ErrUnknownType       = errors.New("assembly: unknown type")
	ErrUnknownAnchor     = errors.New("assembly: unknown placement anchor")
	ErrUnknownParameter  = errors.New("assembly: unknown rotation parameter")
	ErrDuplicateInstance = errors.New("assembly: duplicate instance name")
)

// ChainReferenceError reports a step whose target names an instance or
// output anchor that does not exist at that point of the chain.
type ChainReferenceError struct {
	Step     string
	Instance string
	Anchor   string
}

func (e *ChainReferenceError) Error() string {
	return fmt.Sprintf("assembly: step %q targets %s.%s which is not placed before it",
		e.Step, e.Instance, e.Anchor)
}

// MeshCache is the read side of the geometry cache.
type MeshCache interface {
	Get(name string) (*kernel.Mesh, error)
}

// LoadRequester starts an asynchronous geometry fetch for a variant.
type LoadRequester interface {
	Request(ctx context.Context, v *catalog.Variant) bool
}

// Builder places definitions against a catalog. A nil Loads or Host skips
// the corresponding effect.
type Builder struct {
	Catalog *catalog.Catalog
	Cache   MeshCache
	Loads   LoadRequester
	Host    Host
}

// Build places every step of def and then registers loaded instances with
// the host, requesting geometry for the others. Placement runs to
// completion before any effect, so a failing build registers nothing and
// requests nothing.
func (b *Builder) Build(ctx context.Context, def *Definition, sel Selection) (*Assembly, error) {
	a, err := b.Place(def, sel)
	if err != nil {
		return nil, err
	}
	b.attach(ctx, a)
	return a, nil
}

// Place computes the assembly without touching the cache, loader or host.
// The same definition, selection and catalog always produce the same
// variants and transforms.
func (b *Builder) Place(def *Definition, sel Selection) (*Assembly, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	scale := sel.Scale
	if scale == 0 {
		scale = 1
	}

	a := newAssembly(def.Name, len(def.Steps))
	for _, step := range def.Steps {
		inst, err := b.place(a, def, step, sel, scale)
		if err != nil {
			return nil, err
		}
		a.add(inst)
	}
	return a, nil
}

func (b *Builder) place(a *Assembly, def *Definition, step Step, sel Selection, scale float64) (*Instance, error) {
	part, ok := b.Catalog.Part(step.Part)
	if !ok {
		return nil, fmt.Errorf("%w: step %q: %q", ErrUnknownPart, step.Instance, step.Part)
	}

	typ := part.DefaultType()
	if id, ok := sel.Types[part.ID]; ok {
		if typ, ok = part.Type(id); !ok {
			return nil, fmt.Errorf("%w: part %q has no type %q", ErrUnknownType, part.ID, id)
		}
	}
	if typ == nil {
		return nil, fmt.Errorf("assembly: step %q: %w", step.Instance, selector.ErrNoCandidates)
	}

	variant, err := selector.Select(typ.Variants, sel.Parameters, b.Catalog.ReadableNames)
	if err != nil {
		return nil, fmt.Errorf("assembly: step %q: %w", step.Instance, err)
	}

	anchor, ok := variant.Placement[step.Anchor]
	if !ok {
		return nil, fmt.Errorf("%w: step %q: variant %q has no %q",
			ErrUnknownAnchor, step.Instance, variant.Name, step.Anchor)
	}

	target := step.Target.Point
	if step.Target.IsReference() {
		prev, ok := a.Instance(step.Target.Instance)
		if !ok {
			return nil, &ChainReferenceError{Step: step.Instance, Instance: step.Target.Instance, Anchor: step.Target.Anchor}
		}
		if target, ok = prev.Placement.Outputs[step.Target.Anchor]; !ok {
			return nil, &ChainReferenceError{Step: step.Instance, Instance: step.Target.Instance, Anchor: step.Target.Anchor}
		}
	}

	rotations := make([]kinematics.Euler, len(step.Rotations))
	for i, r := range step.Rotations {
		if rotations[i], err = r.Resolve(sel.Parameters); err != nil {
			return nil, fmt.Errorf("assembly: step %q: %w", step.Instance, err)
		}
	}

	placement := kinematics.Compose(kinematics.Input{
		Anchor:           anchor,
		Outputs:          variant.Output,
		Rotations:        rotations,
		InitialRotations: def.InitialRotations,
		Scale:            scale,
		Target:           target,
	})

	return &Instance{
		Name:      step.Instance,
		Part:      part.ID,
		Type:      typ.ID,
		Variant:   variant,
		Placement: placement,
		Material:  Material{Color: step.Color},
	}, nil
}

// attach performs the effects of a build.
func (b *Builder) attach(ctx context.Context, a *Assembly) {
	for _, inst := range a.Instances {
		if b.Cache != nil {
			if mesh, err := b.Cache.Get(inst.Variant.Name); err == nil {
				inst.Mesh = mesh
			}
		}
		if inst.Mesh == nil {
			if b.Loads != nil && b.Loads.Request(ctx, inst.Variant) {
				log.Printf("assembly: requested %s for %s", inst.Variant.Name, inst.Name)
			}
			continue
		}
		if b.Host != nil {
			inst.Handle = b.Host.RegisterMesh(inst.Mesh, inst.Material, inst.Placement.Transform)
		}
	}
}

// Teardown unregisters every instance of a from the host and empties it.
// Calling it again, or on nil, does nothing.
func (b *Builder) Teardown(a *Assembly) {
	if a == nil {
		return
	}
	for _, inst := range a.Instances {
		if inst.Handle != "" && b.Host != nil {
			b.Host.UnregisterMesh(inst.Handle)
		}
		inst.Handle = ""
	}
	a.Instances = nil
	a.byName = map[string]*Instance{}
}
