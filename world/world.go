package world

import (
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/sparsevox/morton"
)

const numShards = 64

type shard struct {
	mu    sync.RWMutex
	byID  map[EntityID]*entity
	byKey map[morton.Code]EntityID
}

// World is the entity store. Create, BatchCreate, the component getters
// and the spatial queries are safe to call concurrently; Destroy and
// Clear require that no other call is in flight.
//
// Entities shard by id; a separate key-sharded Morton index maps voxel
// cells to ids. The spatial queries scan every id shard. One entity
// exists per voxel cell: creating into an occupied cell applies the
// given components to that cell's entity and keeps the absent ones.
type World struct {
	voxelSize float32
	idCounter atomic.Uint64
	shards    [numShards]shard
	keyShard  [numShards]map[morton.Code]EntityID // key -> id, sharded by key
	keyMu     [numShards]sync.RWMutex
}

// NewWorld creates a world where one voxel spans voxelSize world units.
func NewWorld(voxelSize float32) *World {
	if voxelSize <= 0 {
		voxelSize = 1
	}
	w := &World{voxelSize: voxelSize}
	for i := range w.shards {
		w.shards[i].byID = make(map[EntityID]*entity)
	}
	for i := range w.keyShard {
		w.keyShard[i] = make(map[morton.Code]EntityID)
	}
	return w
}

// VoxelSize returns the world-unit edge length of one voxel.
func (w *World) VoxelSize() float32 { return w.voxelSize }

func (w *World) idShard(id EntityID) *shard {
	return &w.shards[uint64(id)%numShards]
}

func keyShardIndex(key morton.Code) int {
	// Mix the high bits down. The low key bits take part, so neighboring
	// voxels usually land on different shards.
	return int((uint64(key) ^ uint64(key)>>21) % numShards)
}

// Create materializes one entity at position, deriving its MortonKey from
// position and voxel size. Returns the entity id.
func (w *World) Create(req CreationRequest) (EntityID, error) {
	key, err := morton.EncodeF(
		req.Position.X()/w.voxelSize,
		req.Position.Y()/w.voxelSize,
		req.Position.Z()/w.voxelSize,
	)
	if err != nil {
		return 0, err
	}

	ki := keyShardIndex(key)
	w.keyMu[ki].Lock()
	if prev, occupied := w.keyShard[ki][key]; occupied {
		w.keyMu[ki].Unlock()
		w.updateComponents(prev, req.Components)
		return prev, nil
	}
	id := EntityID(w.idCounter.Add(1))
	w.keyShard[ki][key] = id
	w.keyMu[ki].Unlock()

	e := &entity{id: id, key: key, pos: req.Position}
	applyComponents(e, req.Components)

	s := w.idShard(id)
	s.mu.Lock()
	s.byID[id] = e
	s.mu.Unlock()
	return id, nil
}

// BatchCreate creates many entities and returns their ids in input order.
// Failures (out-of-range positions) leave a zero id at that index.
func (w *World) BatchCreate(reqs []CreationRequest) []EntityID {
	ids := make([]EntityID, len(reqs))
	for i, req := range reqs {
		id, err := w.Create(req)
		if err != nil {
			continue
		}
		ids[i] = id
	}
	return ids
}

func applyComponents(e *entity, c Components) {
	if c.Density != nil {
		e.density = *c.Density
		e.has |= hasDensity
	}
	if c.Material != nil {
		e.material = *c.Material
		e.has |= hasMaterial
	}
	if c.EmissionIntensity != nil {
		e.emissionIntensity = *c.EmissionIntensity
		e.has |= hasEmissionIntensity
	}
	if c.Color != nil {
		e.color = *c.Color
		e.has |= hasColor
	}
	if c.Normal != nil {
		e.normal = *c.Normal
		e.has |= hasNormal
	}
	if c.Emission != nil {
		e.emission = *c.Emission
		e.has |= hasEmission
	}
}

func (w *World) updateComponents(id EntityID, c Components) {
	s := w.idShard(id)
	s.mu.Lock()
	if e, ok := s.byID[id]; ok {
		applyComponents(e, c)
	}
	s.mu.Unlock()
}

// Exists reports whether the entity is alive.
func (w *World) Exists(id EntityID) bool {
	s := w.idShard(id)
	s.mu.RLock()
	_, ok := s.byID[id]
	s.mu.RUnlock()
	return ok
}

// Destroy removes one entity. Requires exclusive access.
func (w *World) Destroy(id EntityID) {
	s := w.idShard(id)
	s.mu.Lock()
	e, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	ki := keyShardIndex(e.key)
	w.keyMu[ki].Lock()
	if cur, ok := w.keyShard[ki][e.key]; ok && cur == id {
		delete(w.keyShard[ki], e.key)
	}
	w.keyMu[ki].Unlock()
}

// Clear removes every entity. Requires exclusive access.
func (w *World) Clear() {
	for i := range w.shards {
		w.shards[i].mu.Lock()
		w.shards[i].byID = make(map[EntityID]*entity)
		w.shards[i].mu.Unlock()
	}
	for i := range w.keyShard {
		w.keyMu[i].Lock()
		w.keyShard[i] = make(map[morton.Code]EntityID)
		w.keyMu[i].Unlock()
	}
}

// Count returns the number of live entities.
func (w *World) Count() int {
	n := 0
	for i := range w.shards {
		w.shards[i].mu.RLock()
		n += len(w.shards[i].byID)
		w.shards[i].mu.RUnlock()
	}
	return n
}

// withEntity runs f with the entity's shard read-locked.
func (w *World) withEntity(id EntityID, f func(*entity)) bool {
	s := w.idShard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	f(e)
	return true
}

// Component getters. The bool result reports both entity existence and
// component presence.

func (w *World) Density(id EntityID) (float32, bool) {
	var v float32
	has := false
	w.withEntity(id, func(e *entity) { v, has = e.density, e.has&hasDensity != 0 })
	return v, has
}

func (w *World) Material(id EntityID) (uint32, bool) {
	var v uint32
	has := false
	w.withEntity(id, func(e *entity) { v, has = e.material, e.has&hasMaterial != 0 })
	return v, has
}

func (w *World) EmissionIntensity(id EntityID) (float32, bool) {
	var v float32
	has := false
	w.withEntity(id, func(e *entity) { v, has = e.emissionIntensity, e.has&hasEmissionIntensity != 0 })
	return v, has
}

func (w *World) Color(id EntityID) (mgl32.Vec3, bool) {
	var v mgl32.Vec3
	has := false
	w.withEntity(id, func(e *entity) { v, has = e.color, e.has&hasColor != 0 })
	return v, has
}

func (w *World) Normal(id EntityID) (mgl32.Vec3, bool) {
	var v mgl32.Vec3
	has := false
	w.withEntity(id, func(e *entity) { v, has = e.normal, e.has&hasNormal != 0 })
	return v, has
}

func (w *World) Emission(id EntityID) (mgl32.Vec3, bool) {
	var v mgl32.Vec3
	has := false
	w.withEntity(id, func(e *entity) { v, has = e.emission, e.has&hasEmission != 0 })
	return v, has
}

// MortonKey returns the entity's derived spatial key.
func (w *World) MortonKey(id EntityID) (morton.Code, bool) {
	var v morton.Code
	ok := w.withEntity(id, func(e *entity) { v = e.key })
	return v, ok
}

// Position returns the entity's creation position.
func (w *World) Position(id EntityID) (mgl32.Vec3, bool) {
	var v mgl32.Vec3
	ok := w.withEntity(id, func(e *entity) { v = e.pos })
	return v, ok
}

// BrickRefOf returns the entity's brick back-reference, if set.
func (w *World) BrickRefOf(id EntityID) (BrickRef, bool) {
	var v BrickRef
	has := false
	w.withEntity(id, func(e *entity) { v, has = e.brick, e.has&hasBrickRef != 0 })
	return v, has
}

// Component setters. Mutation is sequenced per entity by the shard lock.

func (w *World) SetDensity(id EntityID, v float32) bool {
	return w.setComponent(id, func(e *entity) { e.density = v; e.has |= hasDensity })
}

func (w *World) SetMaterial(id EntityID, v uint32) bool {
	return w.setComponent(id, func(e *entity) { e.material = v; e.has |= hasMaterial })
}

func (w *World) SetEmissionIntensity(id EntityID, v float32) bool {
	return w.setComponent(id, func(e *entity) { e.emissionIntensity = v; e.has |= hasEmissionIntensity })
}

func (w *World) SetColor(id EntityID, v mgl32.Vec3) bool {
	return w.setComponent(id, func(e *entity) { e.color = v; e.has |= hasColor })
}

func (w *World) SetNormal(id EntityID, v mgl32.Vec3) bool {
	return w.setComponent(id, func(e *entity) { e.normal = v; e.has |= hasNormal })
}

func (w *World) SetEmission(id EntityID, v mgl32.Vec3) bool {
	return w.setComponent(id, func(e *entity) { e.emission = v; e.has |= hasEmission })
}

func (w *World) SetBrickRef(id EntityID, ref BrickRef) bool {
	return w.setComponent(id, func(e *entity) { e.brick = ref; e.has |= hasBrickRef })
}

func (w *World) setComponent(id EntityID, f func(*entity)) bool {
	s := w.idShard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	f(e)
	return true
}

// EntityView is the read-only snapshot of one entity handed to queries.
type EntityView struct {
	ID       EntityID
	Key      morton.Code
	Position mgl32.Vec3
	Density  float32
	Material uint32
	Color    mgl32.Vec3
	Normal   mgl32.Vec3
	Emission mgl32.Vec3
	HasColor bool
	HasNormal bool
}

func viewOf(e *entity) EntityView {
	return EntityView{
		ID:        e.id,
		Key:       e.key,
		Position:  e.pos,
		Density:   e.density,
		Material:  e.material,
		Color:     e.color,
		Normal:    e.normal,
		Emission:  e.emission,
		HasColor:  e.has&hasColor != 0,
		HasNormal: e.has&hasNormal != 0,
	}
}

// QuerySolid returns every entity with positive density.
func (w *World) QuerySolid() []EntityView {
	var out []EntityView
	for i := range w.shards {
		s := &w.shards[i]
		s.mu.RLock()
		for _, e := range s.byID {
			if e.has&hasDensity != 0 && e.density > 0 {
				out = append(out, viewOf(e))
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// QueryAABB returns entities whose position lies inside [min, max].
// Candidates prefilter on the Morton range spanned by the box corners:
// componentwise-ordered corners bound every code inside the box.
func (w *World) QueryAABB(min, max mgl32.Vec3) []EntityView {
	lo, errLo := morton.EncodeF(min.X()/w.voxelSize, min.Y()/w.voxelSize, min.Z()/w.voxelSize)
	hi, errHi := morton.EncodeF(max.X()/w.voxelSize, max.Y()/w.voxelSize, max.Z()/w.voxelSize)
	var out []EntityView
	for i := range w.shards {
		s := &w.shards[i]
		s.mu.RLock()
		for _, e := range s.byID {
			if errLo == nil && errHi == nil && (e.key < lo || e.key > hi) {
				continue
			}
			p := e.pos
			if p.X() < min.X() || p.X() > max.X() ||
				p.Y() < min.Y() || p.Y() > max.Y() ||
				p.Z() < min.Z() || p.Z() > max.Z() {
				continue
			}
			out = append(out, viewOf(e))
		}
		s.mu.RUnlock()
	}
	return out
}

// QueryBrickCell returns entities whose key falls in the 8^3 brick cell
// identified by base (a BrickBase-aligned code).
func (w *World) QueryBrickCell(base morton.Code) []EntityView {
	var out []EntityView
	for i := range w.shards {
		s := &w.shards[i]
		s.mu.RLock()
		for _, e := range s.byID {
			if morton.BrickBase(e.key, 8) == base {
				out = append(out, viewOf(e))
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// EntityAt returns the entity occupying the voxel cell of key, if any.
func (w *World) EntityAt(key morton.Code) (EntityID, bool) {
	ki := keyShardIndex(key)
	w.keyMu[ki].RLock()
	id, ok := w.keyShard[ki][key]
	w.keyMu[ki].RUnlock()
	return id, ok
}
