package svo

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/sparsevox/world"
)

func TestCastSingleVoxelHit(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	addVoxel(t, w, mgl32.Vec3{8, 8, 8}, 0)
	o, err := Build(w, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	res := o.CastRay(mgl32.Vec3{15, 8.1, 8.1}, mgl32.Vec3{-1, 0, 0})
	if !res.Hit {
		t.Fatalf("expected hit, got %s after %d iterations", res.ExitCode, res.Iterations)
	}
	// The voxel cell spans [8, 8.25); the ray enters through its +X face.
	if res.Position.X() < 7.9 || res.Position.X() > 8.3 {
		t.Errorf("hit x = %f, want ~8.25", res.Position.X())
	}
	if res.Normal != (mgl32.Vec3{1, 0, 0}) {
		t.Errorf("hit normal = %v, want +X", res.Normal)
	}
	wantT := 15 - res.Position.X()
	if d := res.T - wantT; d > 0.01 || d < -0.01 {
		t.Errorf("hit t = %f inconsistent with position %v", res.T, res.Position)
	}
	if res.Scale != 0 {
		t.Errorf("full-detail hit should report scale 0, got %d", res.Scale)
	}
}

func TestCastMissThroughEmptySpace(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	addVoxel(t, w, mgl32.Vec3{8, 8, 8}, 0)
	o, err := Build(w, cfg)
	if err != nil {
		t.Fatal(err)
	}

	res := o.CastRay(mgl32.Vec3{15, 15, 15}, mgl32.Vec3{1, 0, 0})
	if res.Hit {
		t.Fatalf("expected miss, hit at %v", res.Position)
	}
	if res.ExitCode != ExitStackExit && res.ExitCode != ExitInvalidSpan {
		t.Errorf("exit code = %s", res.ExitCode)
	}

	// A ray crossing the cube without touching the voxel walks out.
	res = o.CastRay(mgl32.Vec3{-1, 1, 1}, mgl32.Vec3{1, 0, 0})
	if res.Hit {
		t.Fatalf("expected miss, hit at %v", res.Position)
	}
	if res.ExitCode != ExitStackExit {
		t.Errorf("exit code = %s, want StackExit", res.ExitCode)
	}
}

func TestCastInvalidSpan(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	addVoxel(t, w, mgl32.Vec3{8, 8, 8}, 0)
	o, err := Build(w, cfg)
	if err != nil {
		t.Fatal(err)
	}

	// Pointing away from the cube entirely.
	res := o.CastRay(mgl32.Vec3{20, 8, 8}, mgl32.Vec3{1, 0, 0})
	if res.Hit {
		t.Fatal("expected miss")
	}
	if res.ExitCode != ExitInvalidSpan {
		t.Errorf("exit code = %s, want InvalidSpan", res.ExitCode)
	}
}

func TestCastAllAxes(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	center := mgl32.Vec3{8.1, 8.1, 8.1}
	addVoxel(t, w, center, 0)
	o, err := Build(w, cfg)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		origin mgl32.Vec3
		dir    mgl32.Vec3
		normal mgl32.Vec3
	}{
		{"+X", mgl32.Vec3{15, 8.1, 8.1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{1, 0, 0}},
		{"-X", mgl32.Vec3{1, 8.1, 8.1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{-1, 0, 0}},
		{"+Y", mgl32.Vec3{8.1, 15, 8.1}, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 1, 0}},
		{"-Y", mgl32.Vec3{8.1, 1, 8.1}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, -1, 0}},
		{"+Z", mgl32.Vec3{8.1, 8.1, 15}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 0, 1}},
		{"-Z", mgl32.Vec3{8.1, 8.1, 1}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 0, -1}},
	}
	for _, tc := range cases {
		res := o.CastRay(tc.origin, tc.dir)
		if !res.Hit {
			t.Errorf("%s: expected hit", tc.name)
			continue
		}
		if res.Normal != tc.normal {
			t.Errorf("%s: normal %v, want %v", tc.name, res.Normal, tc.normal)
		}
		// The hit lies on the voxel's entry face, within 0.5 world units
		// of the point the voxel was created at.
		d := res.Position.Sub(center).Len()
		if d > 0.5 {
			t.Errorf("%s: hit %v too far from voxel at %v", tc.name, res.Position, center)
		}
	}
}

func TestCastDiagonal(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	addVoxel(t, w, mgl32.Vec3{8.1, 8.1, 8.1}, 0)
	o, err := Build(w, cfg)
	if err != nil {
		t.Fatal(err)
	}
	// Aim at the cell center from an asymmetric corner so the ray does
	// not graze cell boundaries exactly.
	origin := mgl32.Vec3{14, 13.7, 14.3}
	target := mgl32.Vec3{8.125, 8.125, 8.125}
	res := o.CastRay(origin, target.Sub(origin).Normalize())
	if !res.Hit {
		t.Fatalf("diagonal ray should hit, got %s", res.ExitCode)
	}
	if d := res.Position.Sub(target).Len(); d > 0.3 {
		t.Errorf("diagonal hit at %v", res.Position)
	}
}

func TestCastRayDistanceConsistency(t *testing.T) {
	// A ray cast from outside toward the point a voxel was created at hits
	// within one voxel (0.25) of the straight-line distance.
	w, cfg := testWorld(t, 0.25, 6)
	target := mgl32.Vec3{10.1, 4.1, 6.1}
	addVoxel(t, w, target, 0)
	o, err := Build(w, cfg)
	if err != nil {
		t.Fatal(err)
	}

	origins := []mgl32.Vec3{
		{15, 4.1, 6.1},
		{10.1, 15, 6.1},
		{1, 4.1, 6.1},
		{14, 10, 12},
	}
	for _, origin := range origins {
		dir := target.Sub(origin).Normalize()
		res := o.CastRay(origin, dir)
		if !res.Hit {
			t.Errorf("ray from %v missed", origin)
			continue
		}
		want := target.Sub(origin).Len()
		eps := float32(0.25) // one voxel of slack across the cell
		if res.T < want-eps || res.T > want+eps {
			t.Errorf("ray from %v: t = %f, want %f±%f", origin, res.T, want, eps)
		}
	}
}

func TestCastFromInsideCube(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	addVoxel(t, w, mgl32.Vec3{12, 8.1, 8.1}, 0)
	o, err := Build(w, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res := o.CastRay(mgl32.Vec3{4, 8.1, 8.1}, mgl32.Vec3{1, 0, 0})
	if !res.Hit {
		t.Fatalf("inside-origin ray should hit, got %s", res.ExitCode)
	}
	if res.Position.X() < 11.9 || res.Position.X() > 12.1 {
		t.Errorf("hit x = %f", res.Position.X())
	}
}

func TestCastAxisAlignedZeroComponents(t *testing.T) {
	// Exact zeros in two direction components exercise the epsilon path.
	w, cfg := testWorld(t, 0.25, 6)
	for x := 0; x < 64; x++ {
		addVoxel(t, w, mgl32.Vec3{float32(x)*0.25 + 0.1, 4.1, 4.1}, 0)
	}
	o, err := Build(w, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res := o.CastRay(mgl32.Vec3{8, 4.1, 4.1}, mgl32.Vec3{-1, 0, 0})
	if !res.Hit {
		t.Fatalf("axis-aligned ray should hit, got %s", res.ExitCode)
	}
	// Degenerate direction with a tiny component must not loop forever.
	res = o.CastRay(mgl32.Vec3{8, 20, 4.1}, mgl32.Vec3{-0.5e-8, -1, 0})
	if res.ExitCode == ExitMaxIterations {
		t.Error("near-zero component ray tripped the iteration guard")
	}
}

// buildCornell builds the walls of a 10x10x10 box at voxel size 0.5:
// grey floor (material 1), red left wall (material 2), grey elsewhere.
func buildCornell(t *testing.T) *Octree {
	t.Helper()
	w := world.NewWorld(0.5)
	cfg := BuildConfig{
		WorldMin:   mgl32.Vec3{0, 0, 0},
		WorldMax:   mgl32.Vec3{16, 16, 16},
		MaxLevels:  5,
		BrickDepth: 3,
	}

	add := func(x, y, z int, mat uint32) {
		_, err := w.Create(world.CreationRequest{
			Position: mgl32.Vec3{float32(x)*0.5 + 0.25, float32(y)*0.5 + 0.25, float32(z)*0.5 + 0.25},
			Components: world.Components{
				Density:  world.F32(1),
				Material: world.U32(mat),
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	const n = 20 // 10 world units / 0.5 voxel size
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			add(a, 0, b, 1)   // floor, grey
			add(a, n-1, b, 1) // ceiling
			add(0, a, b, 2)   // left wall, red
			add(n-1, a, b, 1) // right wall
			add(a, b, 0, 1)   // back wall
			add(a, b, n-1, 1) // front wall
		}
	}

	o, err := Build(w, cfg)
	if err != nil {
		t.Fatal(err)
	}
	// Tint the palette so material colors are distinguishable.
	o.Materials[1].BaseColor = [4]uint8{128, 128, 128, 255}
	o.Materials[2].BaseColor = [4]uint8{255, 0, 0, 255}
	return o
}

func TestCastCornellLeftWall(t *testing.T) {
	o := buildCornell(t)
	res := o.CastRay(mgl32.Vec3{5, 5, 5}, mgl32.Vec3{-1, 0, 0})
	if !res.Hit {
		t.Fatalf("expected left wall hit, got %s", res.ExitCode)
	}
	if res.Position.X() >= 1.0 {
		t.Errorf("hit x = %f, want < 1.0", res.Position.X())
	}
	if res.Material != 2 {
		t.Errorf("hit material = %d, want 2 (red wall)", res.Material)
	}
	if res.Color.X() < 0.9 || res.Color.Y() > 0.1 {
		t.Errorf("hit color = %v, want red", res.Color)
	}
	if res.Normal != (mgl32.Vec3{1, 0, 0}) {
		t.Errorf("wall normal = %v", res.Normal)
	}
}

func TestCastCornellFloor(t *testing.T) {
	o := buildCornell(t)
	res := o.CastRay(mgl32.Vec3{5, 5, 5}, mgl32.Vec3{0, -1, 0})
	if !res.Hit {
		t.Fatalf("expected floor hit, got %s", res.ExitCode)
	}
	if res.Position.Y() >= 1.0 {
		t.Errorf("hit y = %f", res.Position.Y())
	}
	if res.Material != 1 {
		t.Errorf("floor material = %d, want 1", res.Material)
	}
}

func TestLodTermination(t *testing.T) {
	o := buildCornell(t)
	origin := mgl32.Vec3{55, 5, 5} // ~50 units from the right wall
	dir := mgl32.Vec3{-1, 0, 0}

	fine := o.CastRayLod(origin, dir, LodParams{})
	coarse := o.CastRayLod(origin, dir, LodParams{RayDirSize: 0.05})

	if !fine.Hit || !coarse.Hit {
		t.Fatalf("both casts should hit: fine=%s coarse=%s", fine.ExitCode, coarse.ExitCode)
	}
	if fine.Scale != 0 {
		t.Errorf("LOD-disabled cast should reach scale 0, got %d", fine.Scale)
	}
	if !coarse.LodCut {
		t.Error("coarse cast should be LOD-terminated")
	}
	if coarse.Scale <= fine.Scale {
		t.Errorf("coarse scale %d should exceed fine scale %d", coarse.Scale, fine.Scale)
	}
	if coarse.Iterations >= fine.Iterations {
		t.Errorf("coarse cast took %d iterations, fine %d", coarse.Iterations, fine.Iterations)
	}
}

func TestLodMonotonicity(t *testing.T) {
	// Widening the pixel cone never increases the reported depth.
	o := buildCornell(t)
	origin := mgl32.Vec3{40, 5, 5}
	dir := mgl32.Vec3{-1, 0, 0}

	prevScale := -1
	for _, dirSize := range []float32{0, 0.005, 0.01, 0.02, 0.05, 0.1} {
		res := o.CastRayLod(origin, dir, LodParams{RayDirSize: dirSize})
		if !res.Hit {
			t.Fatalf("dirSize %f: expected hit", dirSize)
		}
		if res.Scale < prevScale {
			t.Errorf("dirSize %f: scale %d dropped below previous %d", dirSize, res.Scale, prevScale)
		}
		prevScale = res.Scale
	}
}

func TestLodBias(t *testing.T) {
	o := buildCornell(t)
	origin := mgl32.Vec3{40, 5, 5}
	dir := mgl32.Vec3{-1, 0, 0}

	unbiased := o.CastRayLod(origin, dir, LodParams{RayDirSize: 0.01})
	biased := o.CastRayLod(origin, dir, LodParams{RayDirSize: 0.01, Bias: 2})
	if biased.Scale < unbiased.Scale {
		t.Errorf("positive bias should coarsen: %d < %d", biased.Scale, unbiased.Scale)
	}
}

func TestCastEmptyOctree(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	o, err := Build(w, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res := o.CastRay(mgl32.Vec3{8, 8, 8}, mgl32.Vec3{1, 0, 0})
	if res.Hit {
		t.Error("empty octree cannot be hit")
	}
}

func TestCastIterationBudget(t *testing.T) {
	// Traversal cost stays within the PUSH/POP bound even for a worst
	// case corner-to-corner ray through a dense scene.
	o := buildCornell(t)
	res := o.CastRay(mgl32.Vec3{15.9, 15.9, 15.9}, mgl32.Vec3{-1, -1.1, -0.9}.Normalize())
	if res.ExitCode == ExitMaxIterations {
		t.Fatal("iteration guard tripped")
	}
	if res.Iterations > 8*CastStackDepth+3*BrickEdge {
		t.Errorf("iterations = %d exceeds budget", res.Iterations)
	}
}
