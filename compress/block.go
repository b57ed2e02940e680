package compress

import (
	_ "embed"

	"github.com/go-gl/mathgl/mgl32"
)

// ReferenceDecoderGLSL is the authoritative GPU-side decoder for both
// block formats. CPU decode must match it bit for bit; keep the two in
// sync when touching either layout.
//
//go:embed block_decode.glsl
var ReferenceDecoderGLSL string

// Compression ratios of the two codecs, on the 8-bit-per-channel basis
// the GPU consumes (16 rgb8 texels = 48 B).
const (
	ColorCompressionRatio  = float32(BlockSize*3) / ColorBlockBytes  // 6:1
	NormalCompressionRatio = float32(BlockSize*3) / NormalBlockBytes // 3:1
)

// ColorBlockCount returns how many blocks cover n elements.
func ColorBlockCount(n int) int {
	return (n + BlockSize - 1) / BlockSize
}

// EncodeColorsBulk splits a flat color stream into 16-element blocks in
// input order and encodes each. The tail block is partial; its uncovered
// texels are don't-care.
func EncodeColorsBulk(colors []mgl32.Vec3) []ColorBlock {
	blocks := make([]ColorBlock, 0, ColorBlockCount(len(colors)))
	for off := 0; off < len(colors); off += BlockSize {
		end := off + BlockSize
		if end > len(colors) {
			end = len(colors)
		}
		blocks = append(blocks, EncodeColorBlock(colors[off:end], nil))
	}
	return blocks
}

// DecodeColorsBulk expands blocks back to a flat stream of n colors.
func DecodeColorsBulk(blocks []ColorBlock, n int) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, 0, n)
	for _, b := range blocks {
		texels := DecodeColorBlock(b)
		for i := 0; i < BlockSize && len(out) < n; i++ {
			out = append(out, texels[i])
		}
	}
	return out
}

// EncodeNormalsBulk splits a flat normal stream into 16-element blocks in
// input order and encodes each.
func EncodeNormalsBulk(normals []mgl32.Vec3) []NormalBlock {
	blocks := make([]NormalBlock, 0, ColorBlockCount(len(normals)))
	for off := 0; off < len(normals); off += BlockSize {
		end := off + BlockSize
		if end > len(normals) {
			end = len(normals)
		}
		blocks = append(blocks, EncodeNormalBlock(normals[off:end], nil))
	}
	return blocks
}

// DecodeNormalsBulk expands blocks back to a flat stream of n normals.
func DecodeNormalsBulk(blocks []NormalBlock, n int) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, 0, n)
	for _, b := range blocks {
		texels := DecodeNormalBlock(b)
		for i := 0; i < BlockSize && len(out) < n; i++ {
			out = append(out, texels[i])
		}
	}
	return out
}
