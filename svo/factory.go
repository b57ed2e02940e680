package svo

import (
	"io"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/sparsevox"
	"github.com/gekko3d/sparsevox/world"
)

// StructureKind selects the spatial structure variant.
type StructureKind int

const (
	// Esvo is the Laine-Karras child-descriptor octree implemented here.
	Esvo StructureKind = iota
	// Dag and the rest are reserved variants sharing the same capability
	// surface; they reuse the world, registry and compressors but their
	// builders are not implemented yet.
	Dag
	Svdag
	HashGrid
	Compressed
)

func (k StructureKind) String() string {
	switch k {
	case Esvo:
		return "esvo"
	case Dag:
		return "dag"
	case Svdag:
		return "svdag"
	case HashGrid:
		return "hashgrid"
	case Compressed:
		return "compressed"
	}
	return "invalid"
}

// Structure is the capability set every variant provides.
type Structure interface {
	VoxelExists(p mgl32.Vec3, scale int) bool
	VoxelData(p mgl32.Vec3, scale int) (VoxelData, bool)
	CastRay(origin, dir mgl32.Vec3) CastResult
	CastRayLod(origin, dir mgl32.Vec3, lod LodParams) CastResult
	GPUBuffers() GPUBuffers
	Serialize(w io.Writer) error
}

// esvoStructure adapts *Octree to the Structure surface.
type esvoStructure struct{ *Octree }

func (s esvoStructure) VoxelData(p mgl32.Vec3, scale int) (VoxelData, bool) {
	return s.Data(p, scale)
}

func (s esvoStructure) Serialize(w io.Writer) error {
	return s.WriteTo(w)
}

// BuildStructure builds the requested variant from a voxel world.
func BuildStructure(kind StructureKind, w *world.World, cfg BuildConfig) (Structure, error) {
	switch kind {
	case Esvo:
		octree, err := Build(w, cfg)
		if err != nil {
			return nil, err
		}
		return esvoStructure{octree}, nil
	case Dag, Svdag, HashGrid, Compressed:
		return nil, sparsevox.Errorf(sparsevox.ErrUnsupported, "structure kind %s is reserved", kind)
	default:
		return nil, sparsevox.Errorf(sparsevox.ErrUnsupported, "unknown structure kind %d", kind)
	}
}
