package voxeldata

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/sparsevox"
	"github.com/gekko3d/sparsevox/morton"
)

// BrickView is a non-owning reference to one brick slot. Linear indices
// run [0,512); 3D access maps (x,y,z) in [0,8)^3 through Morton order so
// neighboring voxels share cache lines during brick DDA.
type BrickView struct {
	reg *Registry
	id  BrickID
}

// ID returns the brick this view addresses.
func (v BrickView) ID() BrickID { return v.id }

// Index3D converts in-brick coordinates to the linear voxel index.
func Index3D(x, y, z int) int {
	return int(morton.EncodeLocal(x, y, z))
}

// Coord3D is the inverse of Index3D.
func Coord3D(i int) (x, y, z int) {
	return morton.DecodeLocal(uint32(i))
}

// Slice returns the whole 512-element attribute array for this brick.
// The slice aliases registry storage; it is valid until the registry is
// dropped and sees later writes. Fails with TypeMismatch when T does not
// match the registered scalar type, and for Vec3 attributes (use Vec3At).
func Slice[T Scalar](v BrickView, attr string) ([]T, error) {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()
	a, err := v.reg.lookup(attr)
	if err != nil {
		return nil, err
	}
	if a.typ == Vec3 {
		return nil, sparsevox.Errorf(sparsevox.ErrTypeMismatch,
			"attribute %q is vec3; scalar slice views do not apply", attr)
	}
	chunks, ok := a.chunks.([][]T)
	if !ok {
		return nil, sparsevox.Errorf(sparsevox.ErrTypeMismatch,
			"attribute %q is %s", attr, a.typ)
	}
	return chunks[v.id], nil
}

// Get reads one voxel by linear index.
func Get[T Scalar](v BrickView, attr string, i int) (T, error) {
	var zero T
	s, err := Slice[T](v, attr)
	if err != nil {
		return zero, err
	}
	return s[i], nil
}

// Set writes one voxel by linear index.
func Set[T Scalar](v BrickView, attr string, i int, val T) error {
	s, err := Slice[T](v, attr)
	if err != nil {
		return err
	}
	s[i] = val
	return nil
}

// Get3D reads one voxel by in-brick coordinates.
func Get3D[T Scalar](v BrickView, attr string, x, y, z int) (T, error) {
	return Get[T](v, attr, Index3D(x, y, z))
}

// Set3D writes one voxel by in-brick coordinates.
func Set3D[T Scalar](v BrickView, attr string, x, y, z int, val T) error {
	return Set[T](v, attr, Index3D(x, y, z), val)
}

// Vec3At reads a vec3 attribute by linear index.
func (v BrickView) Vec3At(attr string, i int) (mgl32.Vec3, error) {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()
	a, err := v.reg.lookup(attr)
	if err != nil {
		return mgl32.Vec3{}, err
	}
	if a.typ != Vec3 {
		return mgl32.Vec3{}, sparsevox.Errorf(sparsevox.ErrTypeMismatch,
			"attribute %q is %s, not vec3", attr, a.typ)
	}
	return mgl32.Vec3{a.vx[v.id][i], a.vy[v.id][i], a.vz[v.id][i]}, nil
}

// SetVec3At writes a vec3 attribute by linear index.
func (v BrickView) SetVec3At(attr string, i int, val mgl32.Vec3) error {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()
	a, err := v.reg.lookup(attr)
	if err != nil {
		return err
	}
	if a.typ != Vec3 {
		return sparsevox.Errorf(sparsevox.ErrTypeMismatch,
			"attribute %q is %s, not vec3", attr, a.typ)
	}
	a.vx[v.id][i] = val.X()
	a.vy[v.id][i] = val.Y()
	a.vz[v.id][i] = val.Z()
	return nil
}

// Vec3At3D reads a vec3 attribute by in-brick coordinates.
func (v BrickView) Vec3At3D(attr string, x, y, z int) (mgl32.Vec3, error) {
	return v.Vec3At(attr, Index3D(x, y, z))
}

// SetVec3At3D writes a vec3 attribute by in-brick coordinates.
func (v BrickView) SetVec3At3D(attr string, x, y, z int, val mgl32.Vec3) error {
	return v.SetVec3At(attr, Index3D(x, y, z), val)
}

// Vec3Streams returns the three expanded scalar streams of a vec3
// attribute for this brick, in x, y, z order.
func (v BrickView) Vec3Streams(attr string) (sx, sy, sz []float32, err error) {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()
	a, err := v.reg.lookup(attr)
	if err != nil {
		return nil, nil, nil, err
	}
	if a.typ != Vec3 {
		return nil, nil, nil, sparsevox.Errorf(sparsevox.ErrTypeMismatch,
			"attribute %q is %s, not vec3", attr, a.typ)
	}
	return a.vx[v.id], a.vy[v.id], a.vz[v.id], nil
}
