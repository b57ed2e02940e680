package compress

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func deg(d float64) float64 { return d * math.Pi / 180 }

// coneNormals builds n unit vectors within maxAngle of axis, spread
// deterministically around the cone.
func coneNormals(axis mgl32.Vec3, maxAngle float64, n int) []mgl32.Vec3 {
	axis = axis.Normalize()
	var u mgl32.Vec3
	if abs32(axis.X()) < 0.9 {
		u = axis.Cross(mgl32.Vec3{1, 0, 0}).Normalize()
	} else {
		u = axis.Cross(mgl32.Vec3{0, 1, 0}).Normalize()
	}
	v := axis.Cross(u)

	out := make([]mgl32.Vec3, n)
	for i := 0; i < n; i++ {
		ang := maxAngle * float64(i) / float64(n)
		azi := 2 * math.Pi * float64(i) / float64(n) * 3.7
		s := float32(math.Sin(ang))
		c := float32(math.Cos(ang))
		dir := axis.Mul(c).
			Add(u.Mul(s * float32(math.Cos(azi)))).
			Add(v.Mul(s * float32(math.Sin(azi))))
		out[i] = dir.Normalize()
	}
	return out
}

func TestNormalClusterRoundTrip(t *testing.T) {
	// Normals within 30 degrees of the base must reconstruct with
	// dot(n, rec) >= 0.95.
	axes := []mgl32.Vec3{{0, 0, 1}, {0, 1, 0}, {1, 0, 0}, {1, 1, 1}, {-1, 0.5, 0.25}}
	for _, axis := range axes {
		normals := coneNormals(axis, deg(30), 16)
		block := EncodeNormalBlock(normals, nil)
		decoded := DecodeNormalBlock(block)
		for i, want := range normals {
			if d := want.Dot(decoded[i]); d < 0.95 {
				t.Errorf("axis %v slot %d: dot %f < 0.95 (want %v got %v)",
					axis, i, d, want, decoded[i])
			}
		}
	}
}

func TestNormalUniformBlock(t *testing.T) {
	n := mgl32.Vec3{0, 0.6, 0.8}
	normals := make([]mgl32.Vec3, 16)
	for i := range normals {
		normals[i] = n
	}
	decoded := DecodeNormalBlock(EncodeNormalBlock(normals, nil))
	for i := range decoded {
		if d := n.Dot(decoded[i]); d < 0.95 {
			t.Errorf("slot %d: uniform block dot %f", i, d)
		}
	}
}

func TestNormalPartialBlock(t *testing.T) {
	normals := []mgl32.Vec3{{0, 0, 1}, {0.1, 0, 0.99}}
	indices := []int32{0, 9}
	block := EncodeNormalBlock(normals, indices)
	decoded := DecodeNormalBlock(block)
	if d := normals[0].Normalize().Dot(decoded[0]); d < 0.95 {
		t.Errorf("slot 0 dot %f", d)
	}
	if d := normals[1].Normalize().Dot(decoded[9]); d < 0.95 {
		t.Errorf("slot 9 dot %f", d)
	}
}

func TestNormalEmptyBlockNeutral(t *testing.T) {
	block := EncodeNormalBlock(nil, nil)
	decoded := DecodeNormalBlock(block)
	for i, n := range decoded {
		if math.Abs(float64(n.Len())-1) > 1e-3 {
			t.Errorf("slot %d of neutral block is not unit length: %v", i, n)
		}
	}
}

func TestNormalDeterminism(t *testing.T) {
	normals := coneNormals(mgl32.Vec3{0.3, -0.2, 0.9}, deg(25), 16)
	a := EncodeNormalBlock(normals, nil)
	b := EncodeNormalBlock(normals, nil)
	if a != b {
		t.Error("encoder must be deterministic")
	}
}

func TestNormalBulkRoundTrip(t *testing.T) {
	normals := coneNormals(mgl32.Vec3{0, 0, 1}, deg(20), 35)
	blocks := EncodeNormalsBulk(normals)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks for 35 normals, got %d", len(blocks))
	}
	out := DecodeNormalsBulk(blocks, len(normals))
	if len(out) != len(normals) {
		t.Fatalf("bulk decode length %d", len(out))
	}
	for i := range out {
		if d := normals[i].Dot(out[i]); d < 0.95 {
			t.Errorf("element %d: dot %f", i, d)
		}
	}
}

func TestAxisCodecRoundTrip(t *testing.T) {
	axes := []mgl32.Vec3{
		{0, 0, 0.5}, {0, 0, -0.5}, {1, 0, 0}, {-0.2, 0, 0}, {0, 1.5, 0},
		{0.3, 0.3, 0.42}, {-0.1, 0.3, -0.1},
	}
	for _, a := range axes {
		rec := unpackAxis(packAxis(a))
		if d := rec.Sub(a).Len(); d > 0.1*a.Len()+0.05 {
			t.Errorf("axis round trip of %v drifted by %f (got %v)", a, d, rec)
		}
	}
	if unpackAxis(packAxis(mgl32.Vec3{})) != (mgl32.Vec3{}) {
		t.Error("zero axis must round trip to zero")
	}
}
