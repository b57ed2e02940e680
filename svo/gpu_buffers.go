package svo

import (
	"encoding/binary"
	"math"
)

// GPUBuffers carries the packed little-endian byte views a renderer
// uploads verbatim. Layouts:
//
//	Hierarchy: 8 bytes per descriptor in BFS order, root first —
//	  u8 validMask, u8 leafMask, u16 reserved, u32 childPointer
//	Bricks:    512 bytes per brick, Morton-ordered 8^3
//	Colors:    256 bytes per brick (32 DXT1 blocks), when compressed
//	Normals:   512 bytes per brick (32 normal blocks), when compressed
//	Lookup:    4 bytes per brick-grid cell, 0xFFFFFFFF = empty
//	Config:    the 64-byte UBO
//	Materials: 32 bytes per palette entry
type GPUBuffers struct {
	Hierarchy []byte
	Bricks    []byte
	Colors    []byte
	Normals   []byte
	Lookup    []byte
	Config    []byte
	Materials []byte
}

// DescriptorBytes is the packed size of one hierarchy record.
const DescriptorBytes = 8

// MaterialBytes is the packed size of one palette entry.
const MaterialBytes = 32

// GPUBuffers packs the octree into upload-ready buffers.
func (o *Octree) GPUBuffers() GPUBuffers {
	out := GPUBuffers{
		Hierarchy: make([]byte, len(o.Descriptors)*DescriptorBytes),
		Bricks:    make([]byte, len(o.Bricks)*BrickVoxels),
		Lookup:    make([]byte, len(o.BrickGrid)*4),
		Config:    o.Config.ToBytes(),
		Materials: make([]byte, len(o.Materials)*MaterialBytes),
	}

	for i, d := range o.Descriptors {
		rec := out.Hierarchy[i*DescriptorBytes:]
		rec[0] = d.ValidMask
		rec[1] = d.LeafMask
		binary.LittleEndian.PutUint16(rec[2:4], 0)
		binary.LittleEndian.PutUint32(rec[4:8], d.ChildPointer)
	}

	for i := range o.Bricks {
		copy(out.Bricks[i*BrickVoxels:], o.Bricks[i][:])
	}

	if len(o.ColorBlocks) > 0 {
		out.Colors = make([]byte, len(o.ColorBlocks)*len(o.ColorBlocks[0]))
		for i, blk := range o.ColorBlocks {
			copy(out.Colors[i*len(blk):], blk[:])
		}
	}
	if len(o.NormalBlocks) > 0 {
		out.Normals = make([]byte, len(o.NormalBlocks)*len(o.NormalBlocks[0]))
		for i, blk := range o.NormalBlocks {
			copy(out.Normals[i*len(blk):], blk[:])
		}
	}

	for i, v := range o.BrickGrid {
		binary.LittleEndian.PutUint32(out.Lookup[i*4:], v)
	}

	for i, m := range o.Materials {
		rec := out.Materials[i*MaterialBytes:]
		copy(rec[0:4], m.BaseColor[:])
		copy(rec[4:8], m.Emissive[:])
		binary.LittleEndian.PutUint32(rec[8:12], math.Float32bits(m.Roughness))
		binary.LittleEndian.PutUint32(rec[12:16], math.Float32bits(m.Metalness))
		binary.LittleEndian.PutUint32(rec[16:20], math.Float32bits(m.IOR))
		binary.LittleEndian.PutUint32(rec[20:24], math.Float32bits(m.Transparency))
		binary.LittleEndian.PutUint32(rec[24:28], math.Float32bits(m.EmissiveIntensity))
		binary.LittleEndian.PutUint32(rec[28:32], math.Float32bits(m.Reserved))
	}

	return out
}
