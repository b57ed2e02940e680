package svo

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/gekko3d/sparsevox"
	"github.com/gekko3d/sparsevox/compress"
	"github.com/gekko3d/sparsevox/morton"
	"github.com/gekko3d/sparsevox/voxeldata"
	"github.com/gekko3d/sparsevox/world"
)

// Attribute names the builder materializes into the registry.
const (
	AttrDensity  = "density"
	AttrMaterial = "material"
	AttrColor    = "color"
	AttrNormal   = "normal"
)

// BuildConfig parameterizes a rebuild.
type BuildConfig struct {
	WorldMin mgl32.Vec3
	WorldMax mgl32.Vec3
	// MaxLevels is the tree depth: the domain spans 2^MaxLevels voxels
	// per axis. Must exceed BrickDepth.
	MaxLevels int
	// BrickDepth is log2 of the brick edge; 3 gives 8^3 bricks.
	BrickDepth int

	CompressColors  bool
	CompressNormals bool
	LodEnabled      bool

	// Registry receives the materialized brick attributes. Optional; a
	// private registry is created when nil.
	Registry *voxeldata.Registry

	// Cancel aborts the build at the next stage boundary when set true.
	Cancel *atomic.Bool

	Logger   sparsevox.Logger
	Profiler *sparsevox.Profiler
}

// DefaultBuildConfig covers a 2^6 voxel domain with 8^3 bricks.
func DefaultBuildConfig(min, max mgl32.Vec3) BuildConfig {
	return BuildConfig{
		WorldMin:   min,
		WorldMax:   max,
		MaxLevels:  6,
		BrickDepth: 3,
	}
}

type buildCell struct {
	key        uint64 // unbiased Morton key of the cell coordinate
	childStart uint32 // index of first child in the next level (or brick)
	validMask  uint8
	leafMask   uint8
}

// Build runs the bottom-up Morton-sorted rebuild and returns the packed
// octree. The only write to the world is each solid entity's brick
// back-reference (SetBrickRef); two builds over the same world and
// config produce byte-identical buffers.
func Build(w *world.World, cfg BuildConfig) (*Octree, error) {
	log := sparsevox.OrNop(cfg.Logger)
	prof := cfg.Profiler
	if prof == nil {
		prof = sparsevox.NewProfiler()
	}

	if err := validateBounds(w, cfg); err != nil {
		return nil, err
	}
	brickEdge := 1 << cfg.BrickDepth
	bricksPerAxis := 1 << (cfg.MaxLevels - cfg.BrickDepth)
	voxelSize := w.VoxelSize()

	reg := cfg.Registry
	if reg == nil {
		reg = voxeldata.NewRegistry()
	}
	ensureAttributes(reg)

	octree := &Octree{
		BuildID: uuid.New(),
		Config: OctreeConfig{
			WorldMin:      cfg.WorldMin,
			WorldExtent:   cfg.WorldMax.Sub(cfg.WorldMin),
			VoxelSize:     voxelSize,
			MaxLevels:     uint32(cfg.MaxLevels),
			BrickDepth:    uint32(cfg.BrickDepth),
			BricksPerAxis: uint32(bricksPerAxis),
		},
		Materials: defaultPalette(),
	}
	if cfg.LodEnabled {
		octree.Config.Flags |= FlagLodEnabled
	}

	// Stage 1: enumerate solid voxels.
	prof.BeginScope("query")
	solid := w.QuerySolid()
	prof.EndScope("query")
	prof.SetCount("solidVoxels", len(solid))
	if cancelled(cfg.Cancel) {
		return nil, sparsevox.Errorf(sparsevox.ErrUnknown, "build cancelled")
	}

	if len(solid) == 0 {
		octree.BrickGrid = emptyGrid(bricksPerAxis)
		log.Debugf("build %s: empty world", octree.BuildID)
		return octree, nil
	}

	// Stage 2: bin entities by brick cell.
	prof.BeginScope("bin")
	type binned struct {
		entity world.EntityView
		local  int // linear Morton index within the brick
	}
	groups := make(map[uint64][]binned)
	res := 1 << cfg.MaxLevels
	for _, e := range solid {
		vx := int(floor32((e.Position.X() - cfg.WorldMin.X()) / voxelSize))
		vy := int(floor32((e.Position.Y() - cfg.WorldMin.Y()) / voxelSize))
		vz := int(floor32((e.Position.Z() - cfg.WorldMin.Z()) / voxelSize))
		if vx < 0 || vy < 0 || vz < 0 || vx >= res || vy >= res || vz >= res {
			continue // outside the build domain
		}
		key := morton.Interleave(uint32(vx>>cfg.BrickDepth), uint32(vy>>cfg.BrickDepth), uint32(vz>>cfg.BrickDepth))
		local := int(morton.EncodeLocal(vx&(brickEdge-1), vy&(brickEdge-1), vz&(brickEdge-1)))
		groups[key] = append(groups[key], binned{entity: e, local: local})
	}
	prof.EndScope("bin")
	if cancelled(cfg.Cancel) {
		return nil, sparsevox.Errorf(sparsevox.ErrUnknown, "build cancelled")
	}

	// Stage 3+4: Morton-sort the occupied bricks, then materialize them
	// in sorted order so brick index order matches curve order. The sort
	// is the cache optimization everything downstream leans on.
	prof.BeginScope("sort")
	brickKeys := make([]uint64, 0, len(groups))
	for key := range groups {
		brickKeys = append(brickKeys, key)
	}
	sort.Slice(brickKeys, func(i, j int) bool { return brickKeys[i] < brickKeys[j] })
	prof.EndScope("sort")

	prof.BeginScope("materialize")
	octree.Bricks = make([]Brick, len(brickKeys))
	brickIDs := make([]voxeldata.BrickID, len(brickKeys))
	for bi, key := range brickKeys {
		id := reg.AllocateBrick()
		brickIDs[bi] = id
		view, err := reg.Brick(id)
		if err != nil {
			return nil, err
		}
		brick := &octree.Bricks[bi]
		for _, bn := range groups[key] {
			e := bn.entity
			matByte := paletteByte(e.Material)
			brick[bn.local] = matByte
			if err := voxeldata.Set[float32](view, AttrDensity, bn.local, e.Density); err != nil {
				return nil, err
			}
			if err := voxeldata.Set[uint32](view, AttrMaterial, bn.local, e.Material); err != nil {
				return nil, err
			}
			if e.HasColor {
				if err := view.SetVec3At(AttrColor, bn.local, e.Color); err != nil {
					return nil, err
				}
			}
			if e.HasNormal {
				if err := view.SetVec3At(AttrNormal, bn.local, e.Normal); err != nil {
					return nil, err
				}
			}
			w.SetBrickRef(e.ID, world.BrickRef{Brick: id, Voxel: bn.local})
		}
	}
	prof.EndScope("materialize")
	prof.SetCount("bricks", len(brickKeys))
	if cancelled(cfg.Cancel) {
		return nil, sparsevox.Errorf(sparsevox.ErrUnknown, "build cancelled")
	}

	// Stage 5: bottom-up hierarchy. Level 0 of cells holds the bricks' parents;
	// each pass groups eight octant siblings under one parent until a
	// single root remains.
	prof.BeginScope("hierarchy")
	levels := buildLevels(brickKeys, cfg.MaxLevels-cfg.BrickDepth)
	octree.Descriptors = emitDescriptors(levels)
	prof.EndScope("hierarchy")
	prof.SetCount("descriptors", len(octree.Descriptors))

	// Stage 6: attribute compression.
	if cfg.CompressColors || cfg.CompressNormals {
		prof.BeginScope("compress")
		compressBricks(octree, reg, brickIDs, cfg)
		prof.EndScope("compress")
	}

	// Stage 7: dense brick-grid lookup.
	prof.BeginScope("lookup")
	octree.BrickGrid = emptyGrid(bricksPerAxis)
	g := bricksPerAxis
	for bi, key := range brickKeys {
		bx, by, bz := morton.Deinterleave(key)
		octree.BrickGrid[int(bx)+int(by)*g+int(bz)*g*g] = uint32(bi)
	}
	prof.EndScope("lookup")

	log.Debugf("build %s: %d descriptors, %d bricks, %d solid voxels",
		octree.BuildID, len(octree.Descriptors), len(octree.Bricks), len(solid))
	return octree, nil
}

func validateBounds(w *world.World, cfg BuildConfig) error {
	ext := cfg.WorldMax.Sub(cfg.WorldMin)
	if ext.X() <= 0 || ext.Y() <= 0 || ext.Z() <= 0 {
		return sparsevox.Errorf(sparsevox.ErrInvalidBounds, "degenerate bounds %v..%v", cfg.WorldMin, cfg.WorldMax)
	}
	if ext.X() != ext.Y() || ext.Y() != ext.Z() {
		return sparsevox.Errorf(sparsevox.ErrInvalidBounds, "bounds must be a cube, got extent %v", ext)
	}
	if cfg.BrickDepth <= 0 || cfg.MaxLevels <= cfg.BrickDepth {
		return sparsevox.Errorf(sparsevox.ErrInvalidBounds,
			"max levels %d must exceed brick depth %d", cfg.MaxLevels, cfg.BrickDepth)
	}
	if cfg.MaxLevels > 21 {
		return sparsevox.Errorf(sparsevox.ErrInvalidBounds, "max levels %d exceeds key capacity", cfg.MaxLevels)
	}
	want := w.VoxelSize() * float32(uint32(1)<<uint(cfg.MaxLevels))
	if !nearly(ext.X(), want) {
		return sparsevox.Errorf(sparsevox.ErrInvalidBounds,
			"extent %g is not voxel size %g times 2^%d", ext.X(), w.VoxelSize(), cfg.MaxLevels)
	}
	return nil
}

func nearly(a, b float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= b*1e-4
}

func cancelled(flag *atomic.Bool) bool {
	return flag != nil && flag.Load()
}

func ensureAttributes(reg *voxeldata.Registry) {
	if reg.KeyAttribute() == "" {
		reg.RegisterKey(AttrDensity, voxeldata.F32, float32(0))
	}
	if _, ok := reg.AttributeType(AttrMaterial); !ok {
		reg.AddAttribute(AttrMaterial, voxeldata.U32, uint32(0))
	}
	if _, ok := reg.AttributeType(AttrColor); !ok {
		reg.AddAttribute(AttrColor, voxeldata.Vec3, mgl32.Vec3{})
	}
	if _, ok := reg.AttributeType(AttrNormal); !ok {
		reg.AddAttribute(AttrNormal, voxeldata.Vec3, mgl32.Vec3{})
	}
}

// paletteByte maps a material component to the occupancy byte: palette
// index + 1, so zero stays the empty marker.
func paletteByte(material uint32) uint8 {
	if material >= MaxMaterials-1 {
		material = MaxMaterials - 2
	}
	return uint8(material + 1)
}

func defaultPalette() []Material {
	mats := make([]Material, MaxMaterials)
	for i := range mats {
		mats[i] = DefaultMaterial()
		mats[i].BaseColor = [4]uint8{120, 120, 120, 255}
	}
	mats[0] = DefaultMaterial()
	return mats
}

func emptyGrid(g int) []uint32 {
	grid := make([]uint32, g*g*g)
	for i := range grid {
		grid[i] = EmptyBrick
	}
	return grid
}

// buildLevels produces cell lists from the bricks' parents (index 0) up to
// the root (last index). Brick keys arrive Morton-sorted, which keeps
// every level sorted and every parent's children contiguous in
// ascending octant order.
func buildLevels(brickKeys []uint64, levelCount int) [][]buildCell {
	levels := make([][]buildCell, 0, levelCount)

	children := make([]buildCell, len(brickKeys))
	for i, key := range brickKeys {
		children[i] = buildCell{key: key}
	}

	for l := 0; l < levelCount; l++ {
		var parents []buildCell
		for ci := 0; ci < len(children); {
			parentKey := children[ci].key >> 3
			cell := buildCell{key: parentKey, childStart: uint32(ci)}
			for ci < len(children) && children[ci].key>>3 == parentKey {
				oct := uint8(children[ci].key & 7)
				cell.validMask |= 1 << oct
				if l == 0 {
					cell.leafMask |= 1 << oct
				}
				ci++
			}
			parents = append(parents, cell)
		}
		levels = append(levels, parents)
		children = parents
	}
	return levels
}

// emitDescriptors lays the cells out in BFS order, root first, and
// resolves absolute child pointers. levels[len-1] holds the root;
// levels[0] the brick parents, whose pointers index the brick array.
func emitDescriptors(levels [][]buildCell) []ChildDescriptor {
	total := 0
	for _, cells := range levels {
		total += len(cells)
	}
	descriptors := make([]ChildDescriptor, 0, total)

	// offset[i] is the BFS position of level i's first descriptor
	// (levels indexed bottom-up, BFS runs top-down).
	offsets := make([]int, len(levels))
	pos := 0
	for i := len(levels) - 1; i >= 0; i-- {
		offsets[i] = pos
		pos += len(levels[i])
	}

	for i := len(levels) - 1; i >= 0; i-- {
		for _, cell := range levels[i] {
			d := ChildDescriptor{ValidMask: cell.validMask, LeafMask: cell.leafMask}
			if i == 0 {
				// Brick parents: the pointer is the first child's index
				// in the Morton-sorted brick array.
				d.ChildPointer = cell.childStart
			} else {
				d.ChildPointer = uint32(offsets[i-1] + int(cell.childStart))
			}
			descriptors = append(descriptors, d)
		}
	}
	return descriptors
}

// compressBricks encodes each brick's color and normal streams into
// their block buffers. Bricks compress independently; the work fans out
// across a bounded worker pool.
func compressBricks(octree *Octree, reg *voxeldata.Registry, brickIDs []voxeldata.BrickID, cfg BuildConfig) {
	n := len(octree.Bricks)
	if cfg.CompressColors {
		octree.ColorBlocks = make([]compress.ColorBlock, n*blocksPerBrick)
		octree.Config.Flags |= FlagColorsCompressed
	}
	if cfg.CompressNormals {
		octree.NormalBlocks = make([]compress.NormalBlock, n*blocksPerBrick)
		octree.Config.Flags |= FlagNormalsCompressed
	}

	workers := 4
	if n < workers {
		workers = n
	}
	var wg sync.WaitGroup
	var next atomic.Int64
	for wkr := 0; wkr < workers; wkr++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				bi := int(next.Add(1)) - 1
				if bi >= n {
					return
				}
				compressOne(octree, reg, bi, brickIDs[bi], cfg)
			}
		}()
	}
	wg.Wait()
}

func compressOne(octree *Octree, reg *voxeldata.Registry, bi int, id voxeldata.BrickID, cfg BuildConfig) {
	view, err := reg.Brick(id)
	if err != nil {
		return
	}
	if cfg.CompressColors {
		sx, sy, sz, err := view.Vec3Streams(AttrColor)
		if err == nil {
			colors := make([]mgl32.Vec3, BrickVoxels)
			for i := range colors {
				colors[i] = mgl32.Vec3{sx[i], sy[i], sz[i]}
			}
			blocks := compress.EncodeColorsBulk(colors)
			copy(octree.ColorBlocks[bi*blocksPerBrick:], blocks)
		}
	}
	if cfg.CompressNormals {
		sx, sy, sz, err := view.Vec3Streams(AttrNormal)
		if err == nil {
			normals := make([]mgl32.Vec3, BrickVoxels)
			for i := range normals {
				normals[i] = mgl32.Vec3{sx[i], sy[i], sz[i]}
			}
			blocks := compress.EncodeNormalsBulk(normals)
			copy(octree.NormalBlocks[bi*blocksPerBrick:], blocks)
		}
	}
}
