// Package voxeldata owns per-attribute voxel storage. Attributes are
// registered once and backed by contiguous arrays; bricks are fixed 8^3
// slots handed out across every attribute at once, so a brick id plus an
// attribute name addresses 512 values that never move.
package voxeldata

import "github.com/go-gl/mathgl/mgl32"

const (
	// BrickEdge is the brick resolution per axis.
	BrickEdge = 8
	// BrickVoxels is the number of voxels in one brick slot.
	BrickVoxels = BrickEdge * BrickEdge * BrickEdge
)

// BrickID addresses one slot across all registered attributes.
type BrickID uint32

// InvalidBrickID is a reserved sentinel BrickID; AllocateBrick never
// returns it.
const InvalidBrickID BrickID = 0xFFFFFFFF

// AttrType enumerates the scalar types an attribute can carry. Vec3 is
// expanded into three float32 streams internally.
type AttrType int

const (
	F32 AttrType = iota
	U32
	U16
	U8
	Vec3
)

func (t AttrType) String() string {
	switch t {
	case F32:
		return "f32"
	case U32:
		return "u32"
	case U16:
		return "u16"
	case U8:
		return "u8"
	case Vec3:
		return "vec3"
	}
	return "invalid"
}

// Scalar constrains the generic typed-slice accessors.
type Scalar interface {
	~float32 | ~uint32 | ~uint16 | ~uint8
}

// Observer receives registry change notifications. OnKeyChanged is
// destructive: spatial structures built on the old key must rebuild.
type Observer interface {
	OnKeyChanged(name string)
	OnAttributeAdded(name string)
	OnAttributeRemoved(name string)
}

// Vec3Default wraps a vec3 default value for RegisterKey and AddAttribute.
type Vec3Default = mgl32.Vec3
