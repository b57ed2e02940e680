package svo

import (
	"math"
	"math/bits"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/sparsevox/compress"
	"github.com/gekko3d/sparsevox/morton"
)

// CastStackDepth is the traversal stack height; the root cube lives at
// scale 23 in the mirrored [1,2]^3 parametric space.
const CastStackDepth = 23

const maxCastIterations = 10000

// ExitCode classifies how a cast ended. Misses are normal outcomes, not
// errors.
type ExitCode int

const (
	// ExitHit: a solid voxel (or LOD-terminated node) was hit.
	ExitHit ExitCode = iota
	// ExitInvalidSpan: the ray never overlaps the root cube.
	ExitInvalidSpan
	// ExitStackExit: the ray walked out of the octree without a hit.
	ExitStackExit
	// ExitMaxIterations: iteration guard tripped (degenerate input).
	ExitMaxIterations
)

func (c ExitCode) String() string {
	switch c {
	case ExitHit:
		return "Hit"
	case ExitInvalidSpan:
		return "InvalidSpan"
	case ExitStackExit:
		return "StackExit"
	case ExitMaxIterations:
		return "MaxIterations"
	}
	return "Unknown"
}

// LodParams drive screen-space termination. The pixel cone has diameter
// RayOrigSize at the camera and grows by RayDirSize per world unit;
// traversal stops once a node's edge drops below the cone diameter.
// Bias shifts the threshold by 2^Bias. Zero RayDirSize disables LOD.
// The cutoff is tested only on nodes of brick size and coarser; once the
// ray enters a brick, its voxels are marched at full resolution.
type LodParams struct {
	RayOrigSize float32
	RayDirSize  float32
	Bias        float32
}

// PixelLod builds LodParams for a pinhole camera from the vertical field
// of view and viewport height in pixels.
func PixelLod(fovY float32, heightPx int) LodParams {
	pixelAngle := fovY / float32(heightPx)
	return LodParams{RayDirSize: 2 * float32(math.Tan(float64(pixelAngle)/2))}
}

// CastResult reports a ray cast. T and Position are world-space;
// Scale is the tree level of the returned cell (0 = single voxel,
// BrickDepth = whole brick, MaxLevels = root).
type CastResult struct {
	Hit      bool
	ExitCode ExitCode

	T        float32
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Scale    int

	Material uint8
	Color    mgl32.Vec3

	Brick uint32 // brick index for leaf hits, EmptyBrick otherwise
	Cell  [3]int // in-brick cell for leaf hits

	Iterations int
	DDASteps   int
	LodCut     bool // true when LOD terminated the descent
}

type stackEntry struct {
	parent uint32
	tMax   float32
}

// CastRay casts at full detail.
func (o *Octree) CastRay(origin, dir mgl32.Vec3) CastResult {
	return o.CastRayLod(origin, dir, LodParams{})
}

// CastRayLod runs the parametric traversal: PUSH descends into child
// cubes the ray enters, ADVANCE steps between siblings along the
// smallest exit plane, POP climbs back up when a step leaves the parent.
// Directions are mirrored per axis so the working ray is positive along
// every axis; octantMask un-mirrors child indices.
func (o *Octree) CastRayLod(origin, dir mgl32.Vec3, lod LodParams) CastResult {
	res := CastResult{ExitCode: ExitStackExit, Brick: EmptyBrick}
	if o.Empty() {
		return res
	}

	extent := o.Config.WorldExtent.X()
	maxLevels := int(o.Config.MaxLevels)
	scaleBase := CastStackDepth - maxLevels // exposed level = scale - scaleBase

	dirSize := lod.RayDirSize
	origSize := lod.RayOrigSize
	if lod.Bias != 0 && dirSize != 0 {
		b := float32(math.Exp2(float64(lod.Bias)))
		dirSize *= b
		origSize *= b
	}

	// Map into [1,2]^3 keeping the parameter t in world units: the
	// direction scales by 1/extent along with the origin.
	var p, d mgl32.Vec3
	for a := 0; a < 3; a++ {
		p[a] = (origin[a]-o.Config.WorldMin[a])/extent + 1
		d[a] = dir[a] / extent
	}

	// Mirror so the working direction is positive everywhere; epsilon
	// keeps the parametric planes finite for axis-aligned rays.
	const dirEps = 1e-23
	octantMask := uint(0)
	for a := 0; a < 3; a++ {
		if d[a] < 0 {
			octantMask |= 1 << uint(a)
			p[a] = 3 - p[a]
			d[a] = -d[a]
		}
		if d[a] < dirEps {
			d[a] = dirEps
		}
	}

	var tCoef, tBias mgl32.Vec3
	for a := 0; a < 3; a++ {
		tCoef[a] = 1 / d[a]
		tBias[a] = p[a] * tCoef[a]
	}
	planeT := func(a int, v float32) float32 { return v*tCoef[a] - tBias[a] }

	tMin := maxf(maxf(planeT(0, 1), planeT(1, 1)), planeT(2, 1))
	tMax := minf(minf(planeT(0, 2), planeT(1, 2)), planeT(2, 2))
	if tMin > tMax || tMax < 0 {
		res.ExitCode = ExitInvalidSpan
		return res
	}
	if tMin < 0 {
		tMin = 0
	}
	h := tMax

	var stack [CastStackDepth + 1]stackEntry

	parent := uint32(0)
	idx := uint(0)
	pos := mgl32.Vec3{1, 1, 1}
	scale := CastStackDepth - 1
	scaleExp2 := float32(0.5)

	for a := 0; a < 3; a++ {
		if planeT(a, 1.5) <= tMin {
			idx |= 1 << uint(a)
			pos[a] = 1.5
		}
	}

	for res.Iterations = 0; res.Iterations < maxCastIterations; res.Iterations++ {
		desc := o.Descriptors[parent]

		// Exit planes of the current child cube.
		var tCorner mgl32.Vec3
		for a := 0; a < 3; a++ {
			tCorner[a] = planeT(a, pos[a]+scaleExp2)
		}
		tcMax := minf(minf(tCorner[0], tCorner[1]), tCorner[2])

		childOct := idx ^ octantMask
		childBit := uint8(1) << childOct

		if desc.ValidMask&childBit != 0 && tMin <= tMax {
			// Screen-space cutoff: the node projects smaller than the
			// pixel cone, so this level is detail enough.
			if dirSize != 0 && tcMax*dirSize+origSize >= scaleExp2*extent {
				return o.coarseHit(&res, desc, childOct, pos, scaleExp2, octantMask, origin, dir, tMin, scale-scaleBase)
			}

			tvMax := minf(tMax, tcMax)
			if tMin <= tvMax {
				if desc.LeafMask&childBit != 0 {
					// Brick child: hand off to the in-brick DDA.
					brickIdx := desc.ChildPointer + desc.childSlot(childOct)
					boxMin, edge := o.childCubeWorld(pos, scaleExp2, octantMask)
					entryNormal := entryFaceNormal(pos, tMin, planeT, dir)
					hit := brickDDA(&o.Bricks[brickIdx], boxMin, edge, origin, dir, tMin, tvMax, entryNormal)
					res.DDASteps += hit.steps
					if hit.hit {
						res.Hit = true
						res.ExitCode = ExitHit
						res.T = hit.t
						res.Position = origin.Add(dir.Mul(hit.t))
						res.Normal = hit.normal
						res.Scale = 0
						res.Material = hit.value - 1
						res.Brick = brickIdx
						res.Cell = hit.cell
						res.Color = o.hitColor(brickIdx, hit.cell, hit.value)
						return res
					}
					// Fall through and advance past the brick.
				} else {
					// PUSH.
					if tcMax < h {
						stack[scale] = stackEntry{parent: parent, tMax: tMax}
					}
					h = tcMax
					parent = desc.ChildPointer + desc.childSlot(childOct)

					idx = 0
					scale--
					scaleExp2 *= 0.5
					for a := 0; a < 3; a++ {
						if planeT(a, pos[a]+scaleExp2) <= tMin {
							idx |= 1 << uint(a)
							pos[a] += scaleExp2
						}
					}
					tMax = tvMax
					continue
				}
			}
		}

		// ADVANCE along every axis whose exit plane is the closest one.
		stepMask := uint(0)
		differing := uint32(0)
		for a := 0; a < 3; a++ {
			if tCorner[a] <= tcMax {
				stepMask |= 1 << uint(a)
				old := math.Float32bits(pos[a])
				pos[a] += scaleExp2
				differing |= old ^ math.Float32bits(pos[a])
			}
		}
		tMin = tcMax
		popNeeded := idx&stepMask != 0
		idx ^= stepMask

		if popNeeded {
			// POP to the deepest ancestor whose cube contains the new
			// position: the highest changed bit of pos names its scale.
			scale = bits.Len32(differing) - 1
			if scale >= CastStackDepth {
				return res // walked out of the root cube
			}
			scaleExp2 = math.Float32frombits(uint32(scale-CastStackDepth+127) << 23)
			entry := stack[scale]
			parent = entry.parent
			tMax = entry.tMax

			// Snap pos to the grid of the restored scale and recover the
			// child index within the restored parent.
			shx := math.Float32bits(pos[0]) >> uint(scale)
			shy := math.Float32bits(pos[1]) >> uint(scale)
			shz := math.Float32bits(pos[2]) >> uint(scale)
			pos[0] = math.Float32frombits(shx << uint(scale))
			pos[1] = math.Float32frombits(shy << uint(scale))
			pos[2] = math.Float32frombits(shz << uint(scale))
			idx = uint(shx&1) | uint(shy&1)<<1 | uint(shz&1)<<2

			h = 0
		}
	}
	res.ExitCode = ExitMaxIterations
	return res
}

// childCubeWorld converts the current (mirrored) child cube to its
// world-space lower corner and edge length.
func (o *Octree) childCubeWorld(pos mgl32.Vec3, scaleExp2 float32, octantMask uint) (mgl32.Vec3, float32) {
	extent := o.Config.WorldExtent.X()
	var boxMin mgl32.Vec3
	for a := 0; a < 3; a++ {
		low := pos[a]
		if octantMask&(1<<uint(a)) != 0 {
			low = 3 - (pos[a] + scaleExp2)
		}
		boxMin[a] = o.Config.WorldMin[a] + (low-1)*extent
	}
	return boxMin, scaleExp2 * extent
}

// entryFaceNormal picks the face the ray entered the current child cube
// through: the axis whose entry plane is hit last. For rays born inside
// the cube the dominant direction axis substitutes.
func entryFaceNormal(pos mgl32.Vec3, tMin float32, planeT func(int, float32) float32, realDir mgl32.Vec3) mgl32.Vec3 {
	axis := 0
	best := float32(math.Inf(-1))
	for a := 0; a < 3; a++ {
		if t := planeT(a, pos[a]); t > best {
			best = t
			axis = a
		}
	}
	if best < 0 {
		// Origin inside the cube; fall back to the dominant axis.
		axis = 0
		for a := 1; a < 3; a++ {
			if abs32f(realDir[a]) > abs32f(realDir[axis]) {
				axis = a
			}
		}
	}
	var n mgl32.Vec3
	if realDir[axis] > 0 {
		n[axis] = -1
	} else {
		n[axis] = 1
	}
	return n
}

// coarseHit finishes a LOD-terminated cast at the current node.
func (o *Octree) coarseHit(res *CastResult, desc ChildDescriptor, childOct uint, pos mgl32.Vec3, scaleExp2 float32, octantMask uint, origin, dir mgl32.Vec3, tMin float32, level int) CastResult {
	res.Hit = true
	res.ExitCode = ExitHit
	res.LodCut = true
	res.T = tMin
	res.Position = origin.Add(dir.Mul(tMin))
	res.Scale = level
	res.Normal = lodNormal(dir)

	if desc.LeafMask&uint8(1<<childOct) != 0 {
		brickIdx := desc.ChildPointer + desc.childSlot(childOct)
		res.Brick = brickIdx
		agg := o.brickAggregate(brickIdx)
		res.Color = agg.Color
		res.Material = agg.Material
		if agg.Normal.Len() > 0 {
			res.Normal = agg.Normal
		}
	} else {
		res.Color = o.materialColor(0)
	}
	return *res
}

func lodNormal(dir mgl32.Vec3) mgl32.Vec3 {
	axis := 0
	for a := 1; a < 3; a++ {
		if abs32f(dir[a]) > abs32f(dir[axis]) {
			axis = a
		}
	}
	var n mgl32.Vec3
	if dir[axis] > 0 {
		n[axis] = -1
	} else {
		n[axis] = 1
	}
	return n
}

// hitColor resolves the surface color of a leaf hit: compressed block if
// present, material palette otherwise.
func (o *Octree) hitColor(brick uint32, cell [3]int, value uint8) mgl32.Vec3 {
	if len(o.ColorBlocks) > 0 {
		idx := int(morton.EncodeLocal(cell[0], cell[1], cell[2]))
		blk := o.ColorBlocks[int(brick)*blocksPerBrick+idx/compress.BlockSize]
		return compress.DecodeColorTexel(blk, idx%compress.BlockSize)
	}
	return o.materialColor(value - 1)
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func abs32f(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
