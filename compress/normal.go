package compress

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// NormalBlock packs 16 normals into 16 bytes:
//
//	offset 0: u32 base normal, 10-10-10 snorm (x bits 0-9, y 10-19, z 20-29)
//	offset 4: u32 tangent axes U (bits 0-15) and V (bits 16-31); each axis
//	          is a 5+5-bit octahedral direction plus a 6-bit magnitude,
//	          sqrt-mapped over [0,2] (magnitude 0 encodes the zero axis)
//	offset 8: 16 nibbles of interpolation coefficients, slot i in nibble i;
//	          bits 0-1 select cU, bits 2-3 select cV from {-1, -1/3, +1/3, +1}
//
// Reconstruction: n_i = normalize(base + cU*U + cV*V). The axes carry the
// cluster spread in their magnitude, so tight clusters reconstruct close
// to base for every coefficient choice.
type NormalBlock [NormalBlockBytes]byte

var coeffTable = [4]float32{-1, -1.0 / 3.0, 1.0 / 3.0, 1}

func packSnorm10(v float32) uint32 {
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	return uint32((v*0.5+0.5)*1023 + 0.5)
}

func unpackSnorm10(bits uint32) float32 {
	return float32(bits&0x3FF)/1023*2 - 1
}

func packBase(n mgl32.Vec3) uint32 {
	return packSnorm10(n.X()) | packSnorm10(n.Y())<<10 | packSnorm10(n.Z())<<20
}

func unpackBase(bits uint32) mgl32.Vec3 {
	v := mgl32.Vec3{unpackSnorm10(bits), unpackSnorm10(bits >> 10), unpackSnorm10(bits >> 20)}
	if v.Len() == 0 {
		return mgl32.Vec3{0, 0, 1}
	}
	return v.Normalize()
}

// octEncodeN maps a unit vector onto the octahedral square with n levels
// per component.
func octEncodeN(d mgl32.Vec3, n uint32) (uint32, uint32) {
	sum := abs32(d.X()) + abs32(d.Y()) + abs32(d.Z())
	if sum == 0 {
		return (n - 1) / 2, (n - 1) / 2
	}
	px := d.X() / sum
	py := d.Y() / sum
	if d.Z() < 0 {
		ox := (1 - abs32(py)) * sign32(px)
		oy := (1 - abs32(px)) * sign32(py)
		px, py = ox, oy
	}
	maxv := float32(n - 1)
	return uint32((px*0.5+0.5)*maxv + 0.5), uint32((py*0.5+0.5)*maxv + 0.5)
}

func octDecodeN(u, v, n uint32) mgl32.Vec3 {
	maxv := float32(n - 1)
	px := float32(u)/maxv*2 - 1
	py := float32(v)/maxv*2 - 1
	pz := 1 - abs32(px) - abs32(py)
	if pz < 0 {
		ox := (1 - abs32(py)) * sign32(px)
		oy := (1 - abs32(px)) * sign32(py)
		px, py = ox, oy
	}
	d := mgl32.Vec3{px, py, pz}
	if d.Len() == 0 {
		return mgl32.Vec3{0, 0, 1}
	}
	return d.Normalize()
}

// packAxis encodes a tangent axis with magnitude into 16 bits:
// bits 0-4 oct u, 5-9 oct v, 10-15 magnitude.
func packAxis(a mgl32.Vec3) uint16 {
	mag := a.Len()
	if mag < 1e-6 {
		return 0
	}
	if mag > 2 {
		mag = 2
	}
	m := uint32(float32(math.Sqrt(float64(mag/2)))*63 + 0.5)
	if m == 0 {
		m = 1
	}
	u, v := octEncodeN(a.Mul(1/a.Len()), 32)
	return uint16(u | v<<5 | m<<10)
}

func unpackAxis(bits uint16) mgl32.Vec3 {
	m := uint32(bits) >> 10 & 0x3F
	if m == 0 {
		return mgl32.Vec3{}
	}
	f := float32(m) / 63
	mag := f * f * 2
	return octDecodeN(uint32(bits)&0x1F, uint32(bits)>>5&0x1F, 32).Mul(mag)
}

func abs32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

func sign32(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}

// EncodeNormalBlock compresses up to 16 normals. indices maps each input
// to its slot in [0,16); nil means sequential. Unused slots are don't-care
// and keep the zero nibble. Zero-length input encodes a neutral +Z block.
func EncodeNormalBlock(normals []mgl32.Vec3, indices []int32) NormalBlock {
	var block NormalBlock
	n := len(normals)
	if n == 0 {
		binary.LittleEndian.PutUint32(block[0:4], packBase(mgl32.Vec3{0, 0, 1}))
		return block
	}
	if n > BlockSize {
		n = BlockSize
	}

	// Base = normalized mean.
	var mean mgl32.Vec3
	for i := 0; i < n; i++ {
		mean = mean.Add(normals[i])
	}
	base := mean
	if base.Len() < 1e-6 {
		base = mgl32.Vec3{0, 0, 1}
	} else {
		base = base.Normalize()
	}

	// U spans toward the farthest input; V toward the largest residual
	// after removing the U component. Both keep their magnitude: the
	// spread of the cluster, which bounds the reconstruction error.
	var u mgl32.Vec3
	bestD := float32(-1)
	for i := 0; i < n; i++ {
		d := normals[i].Sub(base)
		if l := d.LenSqr(); l > bestD {
			bestD = l
			u = d
		}
	}

	var v mgl32.Vec3
	bestD = -1
	uDir := mgl32.Vec3{}
	if u.Len() > 1e-6 {
		uDir = u.Normalize()
	}
	for i := 0; i < n; i++ {
		r := normals[i].Sub(base)
		if uDir.Len() > 0 {
			r = r.Sub(uDir.Mul(r.Dot(uDir)))
		}
		if l := r.LenSqr(); l > bestD {
			bestD = l
			v = r
		}
	}

	baseBits := packBase(base)
	uBits := packAxis(u)
	vBits := packAxis(v)

	binary.LittleEndian.PutUint32(block[0:4], baseBits)
	binary.LittleEndian.PutUint32(block[4:8], uint32(uBits)|uint32(vBits)<<16)

	// Quantize through the decode path so the coefficient search
	// optimizes against what will actually be reconstructed.
	qBase := unpackBase(baseBits)
	qU := unpackAxis(uBits)
	qV := unpackAxis(vBits)

	for k := 0; k < n; k++ {
		slot := int32(k)
		if indices != nil {
			slot = indices[k]
		}
		if slot < 0 || slot >= BlockSize {
			continue
		}
		bestNib := 0
		bestErr := float32(math.MaxFloat32)
		for cu := 0; cu < 4; cu++ {
			for cv := 0; cv < 4; cv++ {
				rec := qBase.Add(qU.Mul(coeffTable[cu])).Add(qV.Mul(coeffTable[cv]))
				if rec.Len() < 1e-6 {
					continue
				}
				rec = rec.Normalize()
				if e := normals[k].Sub(rec).LenSqr(); e < bestErr {
					bestErr = e
					bestNib = cu | cv<<2
				}
			}
		}
		block[8+slot/2] |= uint8(bestNib) << (uint(slot%2) * 4)
	}
	return block
}

// DecodeNormalBlock reconstructs the 16 normals of a block. It matches
// the embedded GLSL reference decoder bit for bit.
func DecodeNormalBlock(block NormalBlock) [BlockSize]mgl32.Vec3 {
	base := unpackBase(binary.LittleEndian.Uint32(block[0:4]))
	axes := binary.LittleEndian.Uint32(block[4:8])
	u := unpackAxis(uint16(axes))
	v := unpackAxis(uint16(axes >> 16))

	var out [BlockSize]mgl32.Vec3
	for i := 0; i < BlockSize; i++ {
		nib := block[8+i/2] >> (uint(i%2) * 4) & 0xF
		rec := base.Add(u.Mul(coeffTable[nib&3])).Add(v.Mul(coeffTable[nib>>2]))
		if rec.Len() < 1e-6 {
			out[i] = base
			continue
		}
		out[i] = rec.Normalize()
	}
	return out
}

// DecodeNormalTexel reconstructs one slot of a block.
func DecodeNormalTexel(block NormalBlock, slot int) mgl32.Vec3 {
	return DecodeNormalBlock(block)[slot]
}
