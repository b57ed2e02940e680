package svo

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ddaHit is the outcome of one brick sub-traversal.
type ddaHit struct {
	hit    bool
	t      float32
	cell   [3]int
	normal mgl32.Vec3
	value  uint8 // occupancy byte (palette index + 1)
	steps  int
}

// brickDDA walks a ray through one 8^3 brick with the Amanatides-Woo
// grid stepper. boxMin/edge define the brick's world-space cube; the ray
// is the original world-space ray and [tEntry, tExit] its parametric
// overlap with the cube. entryNormal is the face normal at tEntry, used
// when the very first cell is solid. At most 3*8 cells are visited; a
// miss means the caller resumes the coarse traversal past this brick.
func brickDDA(brick *Brick, boxMin mgl32.Vec3, edge float32, o, d mgl32.Vec3, tEntry, tExit float32, entryNormal mgl32.Vec3) ddaHit {
	vs := edge / BrickEdge
	inf := float32(math.Inf(1))

	// Nudge inside so the floor lands in the entry cell, then clamp.
	p := o.Add(d.Mul(tEntry + vs*1e-4))
	var cell [3]int
	for a := 0; a < 3; a++ {
		c := int(floor32((p[a] - boxMin[a]) / vs))
		if c < 0 {
			c = 0
		}
		if c >= BrickEdge {
			c = BrickEdge - 1
		}
		cell[a] = c
	}

	var step [3]int
	var tDelta, tNext [3]float32
	for a := 0; a < 3; a++ {
		switch {
		case d[a] > 0:
			step[a] = 1
			tDelta[a] = vs / d[a]
			tNext[a] = (boxMin[a]+float32(cell[a]+1)*vs - o[a]) / d[a]
		case d[a] < 0:
			step[a] = -1
			tDelta[a] = -vs / d[a]
			tNext[a] = (boxMin[a]+float32(cell[a])*vs - o[a]) / d[a]
		default:
			step[a] = 0
			tDelta[a] = inf
			tNext[a] = inf
		}
	}

	t := tEntry
	normal := entryNormal
	res := ddaHit{}
	for res.steps = 0; res.steps <= 3*BrickEdge; res.steps++ {
		if v := brick.At(cell[0], cell[1], cell[2]); v != 0 && t <= tExit {
			res.hit = true
			res.t = t
			res.cell = cell
			res.normal = normal
			res.value = v
			return res
		}

		// Advance along the closest boundary; X wins ties, then Y.
		axis := 0
		if tNext[1] < tNext[0] {
			axis = 1
		}
		if tNext[2] < tNext[axis] {
			axis = 2
		}
		t = tNext[axis]
		if t > tExit+vs*1e-4 {
			return res
		}
		cell[axis] += step[axis]
		if cell[axis] < 0 || cell[axis] >= BrickEdge {
			return res
		}
		tNext[axis] += tDelta[axis]
		normal = mgl32.Vec3{}
		normal[axis] = -float32(step[axis])
	}
	return res
}
