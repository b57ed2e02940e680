// Package compress implements the fixed-size block codecs used for brick
// attributes: DXT1/BC1 color blocks (16 colors to 8 bytes) and a tangent
// frame normal codec (16 normals to 16 bytes). The bit layouts are a
// contract shared with the GPU; the embedded GLSL reference decoders are
// the authoritative description of that contract.
package compress

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// BlockSize is the number of elements per compression block.
	BlockSize = 16
	// ColorBlockBytes is the compressed size of one color block.
	ColorBlockBytes = 8
	// NormalBlockBytes is the compressed size of one normal block.
	NormalBlockBytes = 16
)

// ColorBlock is a DXT1-layout compressed block: two RGB-565 endpoints
// followed by 16 2-bit palette indices, texel 0 in the low bits.
type ColorBlock [ColorBlockBytes]byte

// quantize565 packs a [0,1] RGB color into RGB-565.
func quantize565(c mgl32.Vec3) uint16 {
	r := uint16(clamp01(c.X())*31 + 0.5)
	g := uint16(clamp01(c.Y())*63 + 0.5)
	b := uint16(clamp01(c.Z())*31 + 0.5)
	return r<<11 | g<<5 | b
}

// expand565 is the inverse, matching the GPU's bit-replication expansion.
func expand565(v uint16) mgl32.Vec3 {
	r5 := uint32(v >> 11 & 0x1F)
	g6 := uint32(v >> 5 & 0x3F)
	b5 := uint32(v & 0x1F)
	r8 := r5<<3 | r5>>2
	g8 := g6<<2 | g6>>4
	b8 := b5<<3 | b5>>2
	return mgl32.Vec3{float32(r8) / 255, float32(g8) / 255, float32(b8) / 255}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// colorPalette derives the four interpolated palette entries from the two
// quantized endpoints, as the decoder will.
func colorPalette(c0, c1 uint16) [4]mgl32.Vec3 {
	e0 := expand565(c0)
	e1 := expand565(c1)
	return [4]mgl32.Vec3{
		e0,
		e1,
		e0.Mul(2.0 / 3.0).Add(e1.Mul(1.0 / 3.0)),
		e0.Mul(1.0 / 3.0).Add(e1.Mul(2.0 / 3.0)),
	}
}

// EncodeColorBlock compresses up to 16 colors. indices maps each input
// color to its texel position in [0,16); nil means sequential. Uncovered
// texels keep palette index 0. An empty input encodes the neutral
// all-zero block.
func EncodeColorBlock(colors []mgl32.Vec3, indices []int32) ColorBlock {
	var block ColorBlock
	n := len(colors)
	if n == 0 {
		return block
	}
	if n > BlockSize {
		n = BlockSize
	}

	// Endpoint pair with maximum spread. Ties prefer the pair with the
	// smaller combined norm, then lexicographic order, so the choice is
	// deterministic for symmetric inputs.
	bi, bj := 0, 0
	best := float32(-1)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d := colors[i].Sub(colors[j]).LenSqr()
			if d > best || (d == best && tieBefore(colors[i], colors[j], colors[bi], colors[bj])) {
				best = d
				bi, bj = i, j
			}
		}
	}
	c0 := quantize565(colors[bi])
	c1 := quantize565(colors[bj])
	// DXT1 picks the 4-color palette when c0 > c1. Order the endpoints
	// so the decoder never lands in punch-through alpha mode.
	if c0 < c1 {
		c0, c1 = c1, c0
	}

	palette := colorPalette(c0, c1)

	binary.LittleEndian.PutUint16(block[0:2], c0)
	binary.LittleEndian.PutUint16(block[2:4], c1)

	var bits uint32
	for k := 0; k < n; k++ {
		texel := int32(k)
		if indices != nil {
			texel = indices[k]
		}
		if texel < 0 || texel >= BlockSize {
			continue
		}
		bestIdx := 0
		bestDist := float32(-1)
		for p := 0; p < 4; p++ {
			d := colors[k].Sub(palette[p]).LenSqr()
			if bestDist < 0 || d < bestDist {
				bestDist = d
				bestIdx = p
			}
		}
		bits |= uint32(bestIdx) << (uint(texel) * 2)
	}
	binary.LittleEndian.PutUint32(block[4:8], bits)
	return block
}

func tieBefore(a0, a1, b0, b1 mgl32.Vec3) bool {
	na := a0.LenSqr() + a1.LenSqr()
	nb := b0.LenSqr() + b1.LenSqr()
	if na != nb {
		return na < nb
	}
	return lexLess(a0, b0) || (a0 == b0 && lexLess(a1, b1))
}

func lexLess(a, b mgl32.Vec3) bool {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// DecodeColorBlock expands a block to its 16 texel colors. It matches the
// embedded GLSL reference decoder bit for bit.
func DecodeColorBlock(block ColorBlock) [BlockSize]mgl32.Vec3 {
	c0 := binary.LittleEndian.Uint16(block[0:2])
	c1 := binary.LittleEndian.Uint16(block[2:4])
	bits := binary.LittleEndian.Uint32(block[4:8])
	palette := colorPalette(c0, c1)

	var out [BlockSize]mgl32.Vec3
	for i := 0; i < BlockSize; i++ {
		out[i] = palette[bits>>(uint(i)*2)&3]
	}
	return out
}

// DecodeColorTexel decodes a single texel without expanding the block.
func DecodeColorTexel(block ColorBlock, texel int) mgl32.Vec3 {
	c0 := binary.LittleEndian.Uint16(block[0:2])
	c1 := binary.LittleEndian.Uint16(block[2:4])
	bits := binary.LittleEndian.Uint32(block[4:8])
	palette := colorPalette(c0, c1)
	return palette[bits>>(uint(texel)*2)&3]
}
