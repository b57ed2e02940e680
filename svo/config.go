package svo

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Config flag bits (mirrored in the UBO).
const (
	FlagLodEnabled        = 1 << 0
	FlagColorsCompressed  = 1 << 1
	FlagNormalsCompressed = 1 << 2
)

// OctreeConfigBytes is the UBO size consumed by the traversal shader.
const OctreeConfigBytes = 64

// OctreeConfig describes the octree domain. It packs into a 64-byte UBO:
//
//	 0: vec3 world_min + pad
//	16: vec3 world_extent + pad
//	32: f32  voxel_size
//	36: u32  max_levels
//	40: u32  brick_depth
//	44: u32  bricks_per_axis
//	48: u32  flags
//	52: u32[3] reserved
type OctreeConfig struct {
	WorldMin      mgl32.Vec3
	WorldExtent   mgl32.Vec3
	VoxelSize     float32
	MaxLevels     uint32
	BrickDepth    uint32
	BricksPerAxis uint32
	Flags         uint32
}

// ToBytes packs the config into its UBO layout, little-endian.
func (c OctreeConfig) ToBytes() []byte {
	buf := make([]byte, OctreeConfigBytes)
	putVec3(buf[0:], c.WorldMin)
	putVec3(buf[16:], c.WorldExtent)
	binary.LittleEndian.PutUint32(buf[32:], math.Float32bits(c.VoxelSize))
	binary.LittleEndian.PutUint32(buf[36:], c.MaxLevels)
	binary.LittleEndian.PutUint32(buf[40:], c.BrickDepth)
	binary.LittleEndian.PutUint32(buf[44:], c.BricksPerAxis)
	binary.LittleEndian.PutUint32(buf[48:], c.Flags)
	return buf
}

// ConfigFromBytes unpacks a UBO block.
func ConfigFromBytes(buf []byte) OctreeConfig {
	var c OctreeConfig
	c.WorldMin = getVec3(buf[0:])
	c.WorldExtent = getVec3(buf[16:])
	c.VoxelSize = math.Float32frombits(binary.LittleEndian.Uint32(buf[32:]))
	c.MaxLevels = binary.LittleEndian.Uint32(buf[36:])
	c.BrickDepth = binary.LittleEndian.Uint32(buf[40:])
	c.BricksPerAxis = binary.LittleEndian.Uint32(buf[44:])
	c.Flags = binary.LittleEndian.Uint32(buf[48:])
	return c
}

func putVec3(buf []byte, v mgl32.Vec3) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v.Z()))
	binary.LittleEndian.PutUint32(buf[12:16], 0)
}

func getVec3(buf []byte) mgl32.Vec3 {
	return mgl32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
	}
}
