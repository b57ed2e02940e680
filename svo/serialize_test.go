package svo

import (
	"bytes"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	cfg.CompressColors = true
	cfg.CompressNormals = true
	addVoxel(t, w, mgl32.Vec3{8, 8, 8}, 2)
	addVoxel(t, w, mgl32.Vec3{1, 2, 3}, 5)
	o, err := Build(w, cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, o.WriteTo(&buf))

	// Header leads with the magic.
	assert.Equal(t, []byte(SerialMagic), buf.Bytes()[:8])

	back, err := ReadFrom(&buf)
	require.NoError(t, err)

	assert.Equal(t, o.Config, back.Config)
	assert.Equal(t, o.Descriptors, back.Descriptors)
	assert.Equal(t, o.Bricks, back.Bricks)
	assert.Equal(t, o.ColorBlocks, back.ColorBlocks)
	assert.Equal(t, o.NormalBlocks, back.NormalBlocks)
	assert.Equal(t, o.BrickGrid, back.BrickGrid)
	assert.Equal(t, o.Materials, back.Materials)

	// The deserialized tree answers queries identically.
	res1 := o.CastRay(mgl32.Vec3{15, 8.1, 8.1}, mgl32.Vec3{-1, 0, 0})
	res2 := back.CastRay(mgl32.Vec3{15, 8.1, 8.1}, mgl32.Vec3{-1, 0, 0})
	assert.Equal(t, res1.Hit, res2.Hit)
	assert.Equal(t, res1.Position, res2.Position)
}

func TestSerializeEmptyOctree(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	o, err := Build(w, cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, o.WriteTo(&buf))
	back, err := ReadFrom(&buf)
	require.NoError(t, err)
	assert.True(t, back.Empty())
	assert.Equal(t, o.BrickGrid, back.BrickGrid)
}

func TestSerializeRejectsGarbage(t *testing.T) {
	_, err := ReadFrom(bytes.NewReader([]byte("not an octree file at all, promise")))
	require.Error(t, err)

	// Correct magic, hostile version.
	var buf bytes.Buffer
	header := make([]byte, serialHeader)
	copy(header, SerialMagic)
	header[8] = 99
	buf.Write(header)
	_, err = ReadFrom(&buf)
	require.Error(t, err)
}

func TestFactoryEsvo(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	addVoxel(t, w, mgl32.Vec3{8, 8, 8}, 0)

	s, err := BuildStructure(Esvo, w, cfg)
	require.NoError(t, err)

	assert.True(t, s.VoxelExists(mgl32.Vec3{8.1, 8.1, 8.1}, 0))
	data, ok := s.VoxelData(mgl32.Vec3{8.1, 8.1, 8.1}, 0)
	assert.True(t, ok)
	assert.True(t, data.IsLeaf)

	res := s.CastRay(mgl32.Vec3{15, 8.1, 8.1}, mgl32.Vec3{-1, 0, 0})
	assert.True(t, res.Hit)

	var buf bytes.Buffer
	require.NoError(t, s.Serialize(&buf))
	assert.NotZero(t, buf.Len())
}

func TestFactoryReservedKinds(t *testing.T) {
	w, cfg := testWorld(t, 0.25, 6)
	for _, kind := range []StructureKind{Dag, Svdag, HashGrid, Compressed} {
		_, err := BuildStructure(kind, w, cfg)
		require.Error(t, err, "kind %s", kind)
	}
}
