// Package svo implements the sparse voxel octree: the bit-packed
// hierarchy built bottom-up from a voxel world, parametric ESVO ray
// casting over it, and the packed buffer views a renderer uploads.
package svo

import (
	"math/bits"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/gekko3d/sparsevox/compress"
	"github.com/gekko3d/sparsevox/morton"
)

const (
	// BrickEdge is the brick resolution per axis; BrickDepth levels of
	// the tree live inside each brick.
	BrickEdge   = 8
	BrickVoxels = BrickEdge * BrickEdge * BrickEdge

	// EmptyBrick marks vacant brick-grid lookup entries.
	EmptyBrick = 0xFFFFFFFF

	// MaxMaterials bounds the palette; brick bytes are palette index+1.
	MaxMaterials = 256
)

// ChildDescriptor is one octree node. ValidMask has a bit per existing
// octant child (bit0=X, bit1=Y, bit2=Z positive direction); LeafMask
// marks which of those children are bricks. Children that are
// descriptors occupy a contiguous ascending-octant span starting at
// ChildPointer; when a child's LeafMask bit is set, the same arithmetic
// indexes the brick array instead, and no descriptor slot exists for it.
type ChildDescriptor struct {
	ValidMask    uint8
	LeafMask     uint8
	ChildPointer uint32
}

// IsLeafParent reports whether every child of this node is a brick.
func (d ChildDescriptor) IsLeafParent() bool {
	return d.ValidMask != 0 && d.ValidMask == d.LeafMask
}

// childSlot returns the offset of octant oct within the node's child
// span, counting only siblings of the same kind (descriptor or brick).
func (d ChildDescriptor) childSlot(oct uint) uint32 {
	below := uint8(1<<oct) - 1
	if d.LeafMask&uint8(1<<oct) != 0 {
		return uint32(bits.OnesCount8(d.ValidMask & d.LeafMask & below))
	}
	return uint32(bits.OnesCount8(d.ValidMask &^ d.LeafMask & below))
}

// Brick is the leaf payload: 512 occupancy/material bytes in Morton
// order. Zero means empty; v > 0 indexes material palette entry v-1.
type Brick [BrickVoxels]uint8

// At samples the brick at in-brick coordinates.
func (b *Brick) At(x, y, z int) uint8 {
	return b[morton.EncodeLocal(x, y, z)]
}

// Set writes one voxel byte.
func (b *Brick) Set(x, y, z int, v uint8) {
	b[morton.EncodeLocal(x, y, z)] = v
}

// Material is one palette entry, 32 bytes on the GPU. The core treats
// the fields as opaque payload for the renderer.
type Material struct {
	BaseColor         [4]uint8
	Emissive          [4]uint8
	Roughness         float32
	Metalness         float32
	IOR               float32
	Transparency      float32
	EmissiveIntensity float32
	Reserved          float32
}

// DefaultMaterial is the palette-0 diffuse entry.
func DefaultMaterial() Material {
	return Material{
		BaseColor: [4]uint8{255, 255, 255, 255},
		Roughness: 1.0,
		IOR:       1.0,
	}
}

// Octree is the immutable build output. Rendering threads read it
// through a Snapshot; nothing mutates a published octree.
type Octree struct {
	BuildID uuid.UUID

	Descriptors []ChildDescriptor
	Bricks      []Brick

	// Optional compressed attributes, 32 blocks per brick each, present
	// when the matching config flag is set.
	ColorBlocks  []compress.ColorBlock
	NormalBlocks []compress.NormalBlock

	// BrickGrid maps (bx + by*g + bz*g*g) to a brick index or EmptyBrick.
	BrickGrid []uint32

	Materials []Material

	Config OctreeConfig
}

// Empty reports whether the build saw no solid voxels.
func (o *Octree) Empty() bool { return len(o.Descriptors) == 0 }

// WorldMin returns the lower corner of the octree domain.
func (o *Octree) WorldMin() mgl32.Vec3 { return o.Config.WorldMin }

// WorldMax returns the upper corner of the octree domain.
func (o *Octree) WorldMax() mgl32.Vec3 {
	return o.Config.WorldMin.Add(o.Config.WorldExtent)
}

// MaxLevels returns the tree depth from root cube to voxel.
func (o *Octree) MaxLevels() int { return int(o.Config.MaxLevels) }

// VoxelSize returns the edge length of a voxel at the given scale;
// scale 0 is the finest level, each level doubles the edge.
func (o *Octree) VoxelSize(scale int) float32 {
	return o.Config.VoxelSize * float32(uint32(1)<<uint(scale))
}

// TotalVoxels counts the solid voxels across all bricks.
func (o *Octree) TotalVoxels() uint64 {
	var n uint64
	for i := range o.Bricks {
		for _, v := range o.Bricks[i] {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// voxelCell converts a world position to integer voxel coordinates,
// reporting false outside the domain.
func (o *Octree) voxelCell(p mgl32.Vec3) (x, y, z int, ok bool) {
	res := 1 << o.Config.MaxLevels
	for a := 0; a < 3; a++ {
		v := (p[a] - o.Config.WorldMin[a]) / o.Config.VoxelSize
		c := int(floor32(v))
		if c < 0 || c >= res {
			return 0, 0, 0, false
		}
		switch a {
		case 0:
			x = c
		case 1:
			y = c
		case 2:
			z = c
		}
	}
	return x, y, z, true
}

// descend walks from the root toward the voxel cell of (x,y,z), stopping
// after levels steps or at a leaf. Returns the final descriptor index,
// the brick index if the walk ended in a brick (else EmptyBrick), and
// whether the region is occupied at all.
func (o *Octree) descend(x, y, z, levels int) (node uint32, brick uint32, occupied bool) {
	if o.Empty() {
		return 0, EmptyBrick, false
	}
	maxLevels := int(o.Config.MaxLevels)
	brickDepth := int(o.Config.BrickDepth)
	node = 0
	for level := 0; level < levels; level++ {
		// Levels below the brick parent resolve inside the brick.
		if level > maxLevels-brickDepth-1 {
			break
		}
		shift := uint(maxLevels - 1 - level)
		oct := uint(x>>shift&1) | uint(y>>shift&1)<<1 | uint(z>>shift&1)<<2
		d := o.Descriptors[node]
		if d.ValidMask&uint8(1<<oct) == 0 {
			return node, EmptyBrick, false
		}
		slot := d.ChildPointer + d.childSlot(oct)
		if d.LeafMask&uint8(1<<oct) != 0 {
			return node, slot, true
		}
		node = slot
	}
	return node, EmptyBrick, true
}

// VoxelExists reports whether any solid voxel occupies the cell of p at
// the given scale (0 = finest).
func (o *Octree) VoxelExists(p mgl32.Vec3, scale int) bool {
	x, y, z, ok := o.voxelCell(p)
	if !ok || o.Empty() {
		return false
	}
	maxLevels := int(o.Config.MaxLevels)
	levels := maxLevels - scale
	if levels <= 0 {
		return true
	}
	_, brick, occupied := o.descend(x, y, z, levels)
	if !occupied {
		return false
	}
	if brick == EmptyBrick {
		return true
	}
	return o.brickRegionOccupied(brick, x, y, z, scale)
}

// brickRegionOccupied samples the brick region covering the voxel cell
// at the given scale.
func (o *Octree) brickRegionOccupied(brick uint32, x, y, z, scale int) bool {
	b := &o.Bricks[brick]
	if scale <= 0 {
		return b.At(x&(BrickEdge-1), y&(BrickEdge-1), z&(BrickEdge-1)) != 0
	}
	if scale >= int(o.Config.BrickDepth) {
		// The whole brick is inside the queried cell; bricks are only
		// materialized when occupied.
		return true
	}
	span := 1 << scale
	bx := x & (BrickEdge - 1) &^ (span - 1)
	by := y & (BrickEdge - 1) &^ (span - 1)
	bz := z & (BrickEdge - 1) &^ (span - 1)
	for dz := 0; dz < span; dz++ {
		for dy := 0; dy < span; dy++ {
			for dx := 0; dx < span; dx++ {
				if b.At(bx+dx, by+dy, bz+dz) != 0 {
					return true
				}
			}
		}
	}
	return false
}

// VoxelData is the per-voxel sample surface returned by the query path
// and by coarse LOD hits.
type VoxelData struct {
	Color    mgl32.Vec3
	Normal   mgl32.Vec3
	Material uint8 // palette index
	IsLeaf   bool  // true when sampled from a brick voxel
}

// Data returns the voxel sample at p for the given scale, or false when
// the cell is empty.
func (o *Octree) Data(p mgl32.Vec3, scale int) (VoxelData, bool) {
	x, y, z, ok := o.voxelCell(p)
	if !ok || o.Empty() {
		return VoxelData{}, false
	}
	maxLevels := int(o.Config.MaxLevels)
	_, brick, occupied := o.descend(x, y, z, maxLevels)
	if !occupied || brick == EmptyBrick {
		return VoxelData{}, false
	}
	lx, ly, lz := x&(BrickEdge-1), y&(BrickEdge-1), z&(BrickEdge-1)
	b := &o.Bricks[brick]
	v := b.At(lx, ly, lz)
	if v == 0 {
		return VoxelData{}, false
	}
	if scale > 0 {
		// Coarse query: report the brick aggregate.
		return o.brickAggregate(brick), true
	}
	return o.voxelSample(brick, lx, ly, lz, v), true
}

func (o *Octree) voxelSample(brick uint32, lx, ly, lz int, v uint8) VoxelData {
	out := VoxelData{Material: v - 1, IsLeaf: true}
	idx := int(morton.EncodeLocal(lx, ly, lz))
	if len(o.ColorBlocks) > 0 {
		blk := o.ColorBlocks[int(brick)*blocksPerBrick+idx/compress.BlockSize]
		out.Color = compress.DecodeColorTexel(blk, idx%compress.BlockSize)
	} else {
		out.Color = o.materialColor(v - 1)
	}
	if len(o.NormalBlocks) > 0 {
		blk := o.NormalBlocks[int(brick)*blocksPerBrick+idx/compress.BlockSize]
		out.Normal = compress.DecodeNormalTexel(blk, idx%compress.BlockSize)
	}
	return out
}

const blocksPerBrick = BrickVoxels / compress.BlockSize // 32

func (o *Octree) materialColor(idx uint8) mgl32.Vec3 {
	if int(idx) >= len(o.Materials) {
		return mgl32.Vec3{1, 1, 1}
	}
	c := o.Materials[idx].BaseColor
	return mgl32.Vec3{float32(c[0]) / 255, float32(c[1]) / 255, float32(c[2]) / 255}
}

// brickAggregate averages a brick's solid voxels; coarse LOD hits report
// this instead of a single sample.
func (o *Octree) brickAggregate(brick uint32) VoxelData {
	b := &o.Bricks[brick]
	var sum mgl32.Vec3
	var nsum mgl32.Vec3
	count := 0
	var mat uint8
	for i, v := range b {
		if v == 0 {
			continue
		}
		if count == 0 {
			mat = v - 1
		}
		if len(o.ColorBlocks) > 0 {
			blk := o.ColorBlocks[int(brick)*blocksPerBrick+i/compress.BlockSize]
			sum = sum.Add(compress.DecodeColorTexel(blk, i%compress.BlockSize))
		} else {
			sum = sum.Add(o.materialColor(v - 1))
		}
		if len(o.NormalBlocks) > 0 {
			blk := o.NormalBlocks[int(brick)*blocksPerBrick+i/compress.BlockSize]
			nsum = nsum.Add(compress.DecodeNormalTexel(blk, i%compress.BlockSize))
		}
		count++
	}
	out := VoxelData{Material: mat, IsLeaf: true}
	if count > 0 {
		out.Color = sum.Mul(1 / float32(count))
	}
	if nsum.Len() > 1e-6 {
		out.Normal = nsum.Normalize()
	}
	return out
}

// ChildMask returns the ValidMask of the node containing p at the given
// scale (0 = finest descriptor level).
func (o *Octree) ChildMask(p mgl32.Vec3, scale int) uint8 {
	x, y, z, ok := o.voxelCell(p)
	if !ok || o.Empty() {
		return 0
	}
	maxLevels := int(o.Config.MaxLevels)
	levels := maxLevels - scale
	if levels < 0 {
		levels = 0
	}
	node, _, _ := o.descend(x, y, z, levels)
	return o.Descriptors[node].ValidMask
}

// VoxelBounds returns the world-space AABB of the cell containing p at
// the given scale.
func (o *Octree) VoxelBounds(p mgl32.Vec3, scale int) (min, max mgl32.Vec3) {
	size := o.VoxelSize(scale)
	for a := 0; a < 3; a++ {
		v := floor32((p[a] - o.Config.WorldMin[a]) / size)
		min[a] = o.Config.WorldMin[a] + v*size
		max[a] = min[a] + size
	}
	return min, max
}

// BrickAt returns the brick index covering the given brick-grid
// coordinate, or EmptyBrick.
func (o *Octree) BrickAt(bx, by, bz int) uint32 {
	g := int(o.Config.BricksPerAxis)
	if bx < 0 || by < 0 || bz < 0 || bx >= g || by >= g || bz >= g {
		return EmptyBrick
	}
	return o.BrickGrid[bx+by*g+bz*g*g]
}

func floor32(v float32) float32 {
	f := float32(int32(v))
	if v < 0 && f != v {
		f--
	}
	return f
}
