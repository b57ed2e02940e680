// Package morton implements the 64-bit Z-order codec shared by the voxel
// world, the octree builder and brick-local addressing. Each axis carries
// 21 bits; signed coordinates are biased by 2^20 so the representable
// range is [-2^20, 2^20-1] per axis. Sequential codes walk a space-filling
// curve, which is what makes the Morton-sorted brick layout cache friendly.
package morton

import (
	"math"
	"math/bits"

	"github.com/gekko3d/sparsevox"
)

const (
	// AxisBits is the number of bits per coordinate lane.
	AxisBits = 21
	// Offset biases signed coordinates into the unsigned lane range.
	Offset = 1 << 20
	// CoordMin and CoordMax bound the representable coordinate range.
	CoordMin = -Offset
	CoordMax = Offset - 1

	laneMask = (1 << AxisBits) - 1
)

// Code is a 64-bit Morton key: 63 interleaved bits, top bit unused.
type Code uint64

// expandBits spreads the low 21 bits of v so that two zero bits separate
// each payload bit: ...cba -> ...c00b00a.
func expandBits(v uint64) uint64 {
	v &= laneMask
	v = (v | v<<32) & 0x001F00000000FFFF
	v = (v | v<<16) & 0x001F0000FF0000FF
	v = (v | v<<8) & 0x100F00F00F00F00F
	v = (v | v<<4) & 0x10C30C30C30C30C3
	v = (v | v<<2) & 0x1249249249249249
	return v
}

// compactBits is the inverse of expandBits.
func compactBits(v uint64) uint64 {
	v &= 0x1249249249249249
	v = (v ^ v>>2) & 0x10C30C30C30C30C3
	v = (v ^ v>>4) & 0x100F00F00F00F00F
	v = (v ^ v>>8) & 0x001F0000FF0000FF
	v = (v ^ v>>16) & 0x001F00000000FFFF
	v = (v ^ v>>32) & laneMask
	return v
}

// Encode maps signed voxel coordinates to a Morton code.
// Coordinates outside ±2^20 fail with ErrOutOfRange.
func Encode(x, y, z int32) (Code, error) {
	if x < CoordMin || x > CoordMax ||
		y < CoordMin || y > CoordMax ||
		z < CoordMin || z > CoordMax {
		return 0, sparsevox.Errorf(sparsevox.ErrOutOfRange,
			"coordinate (%d,%d,%d) exceeds ±2^20", x, y, z)
	}
	ux := uint64(uint32(x + Offset))
	uy := uint64(uint32(y + Offset))
	uz := uint64(uint32(z + Offset))
	return Code(expandBits(ux) | expandBits(uy)<<1 | expandBits(uz)<<2), nil
}

// EncodeF encodes world-space floats with floor rounding.
func EncodeF(x, y, z float32) (Code, error) {
	fx := math.Floor(float64(x))
	fy := math.Floor(float64(y))
	fz := math.Floor(float64(z))
	if fx < CoordMin || fx > CoordMax ||
		fy < CoordMin || fy > CoordMax ||
		fz < CoordMin || fz > CoordMax {
		return 0, sparsevox.Errorf(sparsevox.ErrOutOfRange,
			"position (%g,%g,%g) exceeds ±2^20", x, y, z)
	}
	return Encode(int32(fx), int32(fy), int32(fz))
}

// Decode is the inverse of Encode.
func Decode(c Code) (x, y, z int32) {
	ux := compactBits(uint64(c))
	uy := compactBits(uint64(c) >> 1)
	uz := compactBits(uint64(c) >> 2)
	return int32(ux) - Offset, int32(uy) - Offset, int32(uz) - Offset
}

// BrickBase clears the low 3*log2(n) bits so the code addresses the origin
// of its enclosing n^3 brick. n must be a power of two.
func BrickBase(c Code, n int) Code {
	shift := uint(3 * log2(n))
	return c &^ (1<<shift - 1)
}

// AddLocalOffset ORs a small in-brick offset into base. Valid only when
// base came out of BrickBase for a brick of at least the offset's extent,
// so the low-bit region is known zero.
func AddLocalOffset(base Code, lx, ly, lz int) Code {
	local := expandBits(uint64(lx)) | expandBits(uint64(ly))<<1 | expandBits(uint64(lz))<<2
	return base | Code(local)
}

// LocalCoords extracts the in-brick coordinates of c for an n^3 brick,
// each in [0, n).
func LocalCoords(c Code, n int) (lx, ly, lz int) {
	shift := uint(3 * log2(n))
	local := uint64(c) & (1<<shift - 1)
	return int(compactBits(local)), int(compactBits(local >> 1)), int(compactBits(local >> 2))
}

// Interleave builds an unbiased Morton key from unsigned grid
// coordinates (21 bits each). Unlike Encode there is no offset, so
// key>>3 is the key of the parent cell and key&7 the octant within it;
// the octree builder leans on both.
func Interleave(x, y, z uint32) uint64 {
	return expandBits(uint64(x)) | expandBits(uint64(y))<<1 | expandBits(uint64(z))<<2
}

// Deinterleave is the inverse of Interleave.
func Deinterleave(key uint64) (x, y, z uint32) {
	return uint32(compactBits(key)), uint32(compactBits(key >> 1)), uint32(compactBits(key >> 2))
}

// EncodeLocal interleaves small unsigned coordinates without bias. Used
// for intra-brick addressing where (x,y,z) are already in [0, n).
func EncodeLocal(x, y, z int) uint32 {
	return uint32(expandBits(uint64(x)) | expandBits(uint64(y))<<1 | expandBits(uint64(z))<<2)
}

// DecodeLocal is the inverse of EncodeLocal.
func DecodeLocal(idx uint32) (x, y, z int) {
	return int(compactBits(uint64(idx))), int(compactBits(uint64(idx) >> 1)), int(compactBits(uint64(idx) >> 2))
}

func log2(n int) int {
	return bits.Len(uint(n)) - 1
}
