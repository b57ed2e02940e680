package svo

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/sparsevox/compress"
)

// Serialized file layout: a fixed header followed by the buffer sections
// in GPU order, each prefixed by its u64 byte length so readers can skip
// sections they do not consume.
//
//	 0: magic "LKSVO001"
//	 8: u32 version
//	12: u32 max_levels
//	16: u64 total_voxels
//	24: f32[3] world_min
//	36: f32[3] world_max
//	48: 24 reserved bytes
//	72: sections (hierarchy, bricks, colors, normals, lookup, config,
//	    materials), each u64 length + payload
const (
	SerialMagic   = "LKSVO001"
	SerialVersion = 1
	serialHeader  = 72
)

// WriteTo serializes the octree.
func (o *Octree) WriteTo(w io.Writer) error {
	bufs := o.GPUBuffers()

	header := make([]byte, serialHeader)
	copy(header[0:8], SerialMagic)
	binary.LittleEndian.PutUint32(header[8:12], SerialVersion)
	binary.LittleEndian.PutUint32(header[12:16], o.Config.MaxLevels)
	binary.LittleEndian.PutUint64(header[16:24], o.TotalVoxels())
	putVec3Raw(header[24:36], o.WorldMin())
	putVec3Raw(header[36:48], o.WorldMax())
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, section := range [][]byte{
		bufs.Hierarchy, bufs.Bricks, bufs.Colors, bufs.Normals,
		bufs.Lookup, bufs.Config, bufs.Materials,
	} {
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(section)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("write section length: %w", err)
		}
		if len(section) > 0 {
			if _, err := w.Write(section); err != nil {
				return fmt.Errorf("write section: %w", err)
			}
		}
	}
	return nil
}

// ReadFrom deserializes an octree written by WriteTo.
func ReadFrom(r io.Reader) (*Octree, error) {
	header := make([]byte, serialHeader)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(header[0:8]) != SerialMagic {
		return nil, fmt.Errorf("bad magic %q", header[0:8])
	}
	if v := binary.LittleEndian.Uint32(header[8:12]); v != SerialVersion {
		return nil, fmt.Errorf("unsupported version %d", v)
	}

	sections := make([][]byte, 7)
	for i := range sections {
		var lenBuf [8]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("read section length: %w", err)
		}
		n := binary.LittleEndian.Uint64(lenBuf[:])
		sections[i] = make([]byte, n)
		if _, err := io.ReadFull(r, sections[i]); err != nil {
			return nil, fmt.Errorf("read section: %w", err)
		}
	}

	hierarchy, bricks, colors, normals, lookup, config, materials :=
		sections[0], sections[1], sections[2], sections[3], sections[4], sections[5], sections[6]

	if len(config) != OctreeConfigBytes {
		return nil, fmt.Errorf("config section has %d bytes", len(config))
	}
	o := &Octree{Config: ConfigFromBytes(config)}

	if len(hierarchy)%DescriptorBytes != 0 {
		return nil, fmt.Errorf("hierarchy section has %d bytes", len(hierarchy))
	}
	o.Descriptors = make([]ChildDescriptor, len(hierarchy)/DescriptorBytes)
	for i := range o.Descriptors {
		rec := hierarchy[i*DescriptorBytes:]
		o.Descriptors[i] = ChildDescriptor{
			ValidMask:    rec[0],
			LeafMask:     rec[1],
			ChildPointer: binary.LittleEndian.Uint32(rec[4:8]),
		}
	}

	if len(bricks)%BrickVoxels != 0 {
		return nil, fmt.Errorf("brick section has %d bytes", len(bricks))
	}
	o.Bricks = make([]Brick, len(bricks)/BrickVoxels)
	for i := range o.Bricks {
		copy(o.Bricks[i][:], bricks[i*BrickVoxels:])
	}

	o.ColorBlocks = unpackColorBlocks(colors)
	o.NormalBlocks = unpackNormalBlocks(normals)

	o.BrickGrid = make([]uint32, len(lookup)/4)
	for i := range o.BrickGrid {
		o.BrickGrid[i] = binary.LittleEndian.Uint32(lookup[i*4:])
	}

	o.Materials = make([]Material, len(materials)/MaterialBytes)
	for i := range o.Materials {
		rec := materials[i*MaterialBytes:]
		m := &o.Materials[i]
		copy(m.BaseColor[:], rec[0:4])
		copy(m.Emissive[:], rec[4:8])
		m.Roughness = math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12]))
		m.Metalness = math.Float32frombits(binary.LittleEndian.Uint32(rec[12:16]))
		m.IOR = math.Float32frombits(binary.LittleEndian.Uint32(rec[16:20]))
		m.Transparency = math.Float32frombits(binary.LittleEndian.Uint32(rec[20:24]))
		m.EmissiveIntensity = math.Float32frombits(binary.LittleEndian.Uint32(rec[24:28]))
		m.Reserved = math.Float32frombits(binary.LittleEndian.Uint32(rec[28:32]))
	}

	return o, nil
}

func unpackColorBlocks(buf []byte) []compress.ColorBlock {
	if len(buf) == 0 {
		return nil
	}
	blocks := make([]compress.ColorBlock, len(buf)/compress.ColorBlockBytes)
	for i := range blocks {
		copy(blocks[i][:], buf[i*compress.ColorBlockBytes:])
	}
	return blocks
}

func unpackNormalBlocks(buf []byte) []compress.NormalBlock {
	if len(buf) == 0 {
		return nil
	}
	blocks := make([]compress.NormalBlock, len(buf)/compress.NormalBlockBytes)
	for i := range blocks {
		copy(blocks[i][:], buf[i*compress.NormalBlockBytes:])
	}
	return blocks
}

func putVec3Raw(buf []byte, v mgl32.Vec3) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v.Z()))
}
