package voxeldata

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/sparsevox"
)

type recordingObserver struct {
	keyChanges []string
	added      []string
	removed    []string
}

func (o *recordingObserver) OnKeyChanged(name string)      { o.keyChanges = append(o.keyChanges, name) }
func (o *recordingObserver) OnAttributeAdded(name string)  { o.added = append(o.added, name) }
func (o *recordingObserver) OnAttributeRemoved(name string) { o.removed = append(o.removed, name) }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	_, err := r.RegisterKey("density", F32, float32(0))
	require.NoError(t, err)
	_, err = r.AddAttribute("material", U32, uint32(0))
	require.NoError(t, err)
	return r
}

func TestRegisterAndAllocate(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, "density", r.KeyAttribute())

	id := r.AllocateBrick()
	view, err := r.Brick(id)
	require.NoError(t, err)

	require.NoError(t, Set[float32](view, "density", 0, 1.5))
	got, err := Get[float32](view, "density", 0)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), got)

	// 3D access goes through the Morton mapping.
	require.NoError(t, Set3D[uint32](view, "material", 3, 4, 5, 42))
	m, err := Get3D[uint32](view, "material", 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), m)
}

func TestDoubleKeyRejected(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterKey("density2", F32, float32(0))
	assert.Error(t, err)
}

func TestTypeMismatch(t *testing.T) {
	r := newTestRegistry(t)
	id := r.AllocateBrick()
	view, err := r.Brick(id)
	require.NoError(t, err)

	_, err = Slice[uint32](view, "density")
	require.Error(t, err)
	assert.Equal(t, sparsevox.ErrTypeMismatch, sparsevox.KindOf(err))

	_, err = Slice[float32](view, "missing")
	assert.Error(t, err)
}

func TestInvalidBrick(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Brick(0)
	require.Error(t, err)
	assert.Equal(t, sparsevox.ErrInvalidBrick, sparsevox.KindOf(err))

	id := r.AllocateBrick()
	require.NoError(t, r.FreeBrick(id))
	_, err = r.Brick(id)
	require.Error(t, err)
	assert.Equal(t, sparsevox.ErrInvalidBrick, sparsevox.KindOf(err))
	assert.Error(t, r.FreeBrick(id))
}

func TestSlotReuseAndReset(t *testing.T) {
	r := newTestRegistry(t)
	a := r.AllocateBrick()
	view, _ := r.Brick(a)
	require.NoError(t, Set[float32](view, "density", 7, 9))
	require.NoError(t, r.FreeBrick(a))

	b := r.AllocateBrick()
	assert.Equal(t, a, b, "freed slot should be recycled first")
	view2, _ := r.Brick(b)
	got, _ := Get[float32](view2, "density", 7)
	assert.Equal(t, float32(0), got, "recycled slot must come back at defaults")
}

func TestAttributeIndependence(t *testing.T) {
	// Adding and removing a non-key attribute must not disturb any other
	// attribute's stored values, bit for bit.
	r := newTestRegistry(t)
	ids := make([]BrickID, 4)
	for i := range ids {
		ids[i] = r.AllocateBrick()
		view, _ := r.Brick(ids[i])
		for j := 0; j < BrickVoxels; j++ {
			require.NoError(t, Set[float32](view, "density", j, float32(i*1000+j)))
			require.NoError(t, Set[uint32](view, "material", j, uint32(i*1000+j)))
		}
	}

	check := func() {
		for i, id := range ids {
			view, err := r.Brick(id)
			require.NoError(t, err)
			for j := 0; j < BrickVoxels; j++ {
				d, _ := Get[float32](view, "density", j)
				m, _ := Get[uint32](view, "material", j)
				require.Equal(t, float32(i*1000+j), d)
				require.Equal(t, uint32(i*1000+j), m)
			}
		}
	}

	_, err := r.AddAttribute("emission", F32, float32(0))
	require.NoError(t, err)
	check()

	require.NoError(t, r.RemoveAttribute("emission"))
	check()
}

func TestLateAttributeCoversExistingBricks(t *testing.T) {
	r := newTestRegistry(t)
	id := r.AllocateBrick()

	_, err := r.AddAttribute("occlusion", U8, uint8(255))
	require.NoError(t, err)

	view, _ := r.Brick(id)
	got, err := Get[uint8](view, "occlusion", 100)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), got, "late attribute must carry defaults for existing bricks")
}

func TestKeyRemovalRejected(t *testing.T) {
	r := newTestRegistry(t)
	assert.Error(t, r.RemoveAttribute("density"))
}

func TestObservers(t *testing.T) {
	r := NewRegistry()
	obs := &recordingObserver{}
	r.Subscribe(obs)

	_, err := r.RegisterKey("density", F32, float32(0))
	require.NoError(t, err)
	_, err = r.AddAttribute("color", Vec3, mgl32.Vec3{})
	require.NoError(t, err)
	require.NoError(t, r.ChangeKey("color"))
	require.NoError(t, r.RemoveAttribute("density"))

	assert.Equal(t, []string{"density", "color"}, obs.keyChanges)
	assert.Equal(t, []string{"color"}, obs.added)
	assert.Equal(t, []string{"density"}, obs.removed)
}

func TestVec3Attribute(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.AddAttribute("normal", Vec3, mgl32.Vec3{0, 1, 0})
	require.NoError(t, err)

	id := r.AllocateBrick()
	view, _ := r.Brick(id)

	// Default applies everywhere.
	n, err := view.Vec3At("normal", 13)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, n)

	want := mgl32.Vec3{0.5, -0.5, 0.25}
	require.NoError(t, view.SetVec3At3D("normal", 1, 2, 3, want))
	got, err := view.Vec3At3D("normal", 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	sx, sy, sz, err := view.Vec3Streams("normal")
	require.NoError(t, err)
	idx := Index3D(1, 2, 3)
	assert.Equal(t, want.X(), sx[idx])
	assert.Equal(t, want.Y(), sy[idx])
	assert.Equal(t, want.Z(), sz[idx])

	// Scalar views on a vec3 attribute are a type mismatch.
	_, err = Slice[float32](view, "normal")
	assert.Error(t, err)
}
