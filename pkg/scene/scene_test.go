package scene

import (
	"testing"

	"github.com/chazu/linkage/pkg/assembly"
	"github.com/chazu/linkage/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndUnregister(t *testing.T) {
	s := New()
	mesh := &kernel.Mesh{Vertices: []float32{0, 0, 0}}
	tr := sdf.Translate3d(v3.Vec{X: 1})

	a := s.RegisterMesh(mesh, assembly.Material{Color: "#154360"}, tr)
	b := s.RegisterMesh(mesh, assembly.Material{Color: "#ffffff"}, sdf.Identity3d())
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(string(a))
	assert.NoError(t, err, "handles are uuids")

	obj, ok := s.Object(a)
	require.True(t, ok)
	assert.Same(t, mesh, obj.Mesh)
	assert.Equal(t, "#154360", obj.Material.Color)
	assert.Equal(t, tr, obj.Transform)

	s.UnregisterMesh(a)
	s.UnregisterMesh(a)
	s.UnregisterMesh("unknown")
	assert.Equal(t, 1, s.Len())
	_, ok = s.Object(a)
	assert.False(t, ok)
}

func TestObjectsKeepRegistrationOrder(t *testing.T) {
	s := New()
	var hs []assembly.Handle
	for _, c := range []string{"a", "b", "c"} {
		hs = append(hs, s.RegisterMesh(&kernel.Mesh{}, assembly.Material{Color: c}, sdf.Identity3d()))
	}
	s.UnregisterMesh(hs[1])

	objs := s.Objects()
	require.Len(t, objs, 2)
	assert.Equal(t, "a", objs[0].Material.Color)
	assert.Equal(t, "c", objs[1].Material.Color)
}

func TestSceneAsBuilderHost(t *testing.T) {
	s := New()
	var host assembly.Host = s
	h := host.RegisterMesh(&kernel.Mesh{}, assembly.Material{}, sdf.Identity3d())
	host.UnregisterMesh(h)
	assert.Zero(t, s.Len())
}
