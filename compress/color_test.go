package compress

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// maxChannelErr returns the worst per-channel error between two colors.
func maxChannelErr(a, b mgl32.Vec3) float32 {
	worst := float32(0)
	for i := 0; i < 3; i++ {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		if d > worst {
			worst = d
		}
	}
	return worst
}

func TestColorRGBCubeCorners(t *testing.T) {
	// Two opposite corners of the RGB cube (black and white), alternating
	// to fill the block. Endpoint
	// spread selection plus the 4-entry palette cannot represent all 8
	// corners exactly, so the bound here is the quantization bound on
	// colors that land on a palette entry; we check the round trip stays
	// within 1/32 per channel for the endpoint colors themselves.
	black := mgl32.Vec3{0, 0, 0}
	white := mgl32.Vec3{1, 1, 1}
	colors := make([]mgl32.Vec3, 16)
	for i := range colors {
		if i%2 == 0 {
			colors[i] = black
		} else {
			colors[i] = white
		}
	}
	block := EncodeColorBlock(colors, nil)
	decoded := DecodeColorBlock(block)
	for i, want := range colors {
		if err := maxChannelErr(want, decoded[i]); err > 1.0/32.0 {
			t.Errorf("texel %d: error %f exceeds 1/32 (want %v got %v)", i, err, want, decoded[i])
		}
	}
}

func TestColorUniformBlock(t *testing.T) {
	c := mgl32.Vec3{0.25, 0.5, 0.75}
	colors := make([]mgl32.Vec3, 16)
	for i := range colors {
		colors[i] = c
	}
	decoded := DecodeColorBlock(EncodeColorBlock(colors, nil))
	for i := range decoded {
		if err := maxChannelErr(c, decoded[i]); err > 1.0/32.0 {
			t.Errorf("texel %d: uniform block error %f (got %v)", i, err, decoded[i])
		}
	}
}

func TestColorGradientWithinPaletteBound(t *testing.T) {
	// A linear two-color gradient is the ideal DXT1 input: every texel
	// must land within half a palette step of the ramp.
	e0 := mgl32.Vec3{0, 0, 0}
	e1 := mgl32.Vec3{1, 0.5, 0.25}
	colors := make([]mgl32.Vec3, 16)
	for i := range colors {
		f := float32(i) / 15
		colors[i] = e0.Mul(1 - f).Add(e1.Mul(f))
	}
	decoded := DecodeColorBlock(EncodeColorBlock(colors, nil))
	for i := range decoded {
		// Palette steps are 1/3 of the endpoint span plus 565 noise.
		if err := maxChannelErr(colors[i], decoded[i]); err > 1.0/6.0+1.0/32.0 {
			t.Errorf("texel %d: gradient error %f", i, err)
		}
	}
}

func TestColorPartialBlockWithIndices(t *testing.T) {
	colors := []mgl32.Vec3{{1, 0, 0}, {0, 0, 1}}
	indices := []int32{3, 12}
	block := EncodeColorBlock(colors, indices)
	decoded := DecodeColorBlock(block)

	if err := maxChannelErr(colors[0], decoded[3]); err > 1.0/32.0 {
		t.Errorf("texel 3 should hold red, got %v", decoded[3])
	}
	if err := maxChannelErr(colors[1], decoded[12]); err > 1.0/32.0 {
		t.Errorf("texel 12 should hold blue, got %v", decoded[12])
	}
}

func TestColorEmptyBlockNeutral(t *testing.T) {
	block := EncodeColorBlock(nil, nil)
	if block != (ColorBlock{}) {
		t.Errorf("empty input should produce the neutral zero block, got %v", block)
	}
}

func TestColorDeterminism(t *testing.T) {
	colors := []mgl32.Vec3{{0.1, 0.2, 0.3}, {0.9, 0.8, 0.7}, {0.5, 0.5, 0.5}, {0.3, 0.6, 0.9}}
	a := EncodeColorBlock(colors, nil)
	b := EncodeColorBlock(colors, nil)
	if a != b {
		t.Error("encoder must be deterministic")
	}
}

func TestColorFourColorModeOrdering(t *testing.T) {
	// Whatever the input order of the endpoints, the emitted block must
	// keep c0 >= c1 so BC1 decoders stay in 4-color mode.
	colors := []mgl32.Vec3{{0, 0, 0.2}, {1, 1, 1}}
	block := EncodeColorBlock(colors, nil)
	c0 := uint16(block[0]) | uint16(block[1])<<8
	c1 := uint16(block[2]) | uint16(block[3])<<8
	if c0 < c1 {
		t.Errorf("c0 (%04x) must not be below c1 (%04x)", c0, c1)
	}
}

func TestColorBulkRoundTrip(t *testing.T) {
	colors := make([]mgl32.Vec3, 40)
	for i := range colors {
		f := float32(i) / float32(len(colors)-1)
		colors[i] = mgl32.Vec3{f, f, f}
	}
	blocks := EncodeColorsBulk(colors)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks for 40 colors, got %d", len(blocks))
	}
	out := DecodeColorsBulk(blocks, len(colors))
	if len(out) != len(colors) {
		t.Fatalf("bulk decode length %d, want %d", len(out), len(colors))
	}
	for i := range out {
		if err := maxChannelErr(colors[i], out[i]); err > 1.0/6.0+1.0/32.0 {
			t.Errorf("element %d: bulk error %f", i, err)
		}
	}
}
