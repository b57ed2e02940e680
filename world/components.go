// Package world holds the mutable voxel scene: per-voxel entities keyed
// by Morton code, spatial queries over them, and the asynchronous
// ingestion queue that materializes entities without stalling renderers.
package world

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/sparsevox/morton"
	"github.com/gekko3d/sparsevox/voxeldata"
)

// EntityID identifies one voxel entity. Zero is never a valid id.
type EntityID uint64

// Component presence bits.
const (
	hasDensity = 1 << iota
	hasMaterial
	hasEmissionIntensity
	hasColor
	hasNormal
	hasEmission
	hasBrickRef
)

// Components bundles the optional per-voxel component values for entity
// creation. Nil fields are absent.
type Components struct {
	Density           *float32
	Material          *uint32
	EmissionIntensity *float32
	Color             *mgl32.Vec3
	Normal            *mgl32.Vec3
	Emission          *mgl32.Vec3
}

// F32 and friends are tiny literal helpers for building Components.
func F32(v float32) *float32     { return &v }
func U32(v uint32) *uint32       { return &v }
func V3(v mgl32.Vec3) *mgl32.Vec3 { return &v }

// BrickRef points an entity back at its enclosing brick slot.
type BrickRef struct {
	Brick voxeldata.BrickID
	Voxel int // linear voxel index within the brick
}

type entity struct {
	id  EntityID
	key morton.Code
	pos mgl32.Vec3

	density           float32
	material          uint32
	emissionIntensity float32
	color             mgl32.Vec3
	normal            mgl32.Vec3
	emission          mgl32.Vec3
	brick             BrickRef

	has uint8
}

// CreationRequest describes one entity for Create/BatchCreate and the
// ingestion queue.
type CreationRequest struct {
	Position   mgl32.Vec3
	Components Components
}
