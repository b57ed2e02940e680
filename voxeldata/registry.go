package voxeldata

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/sparsevox"
)

type attribute struct {
	name  string
	typ   AttrType
	index int

	// One chunk of 512 values per brick slot. Chunks never move once
	// allocated, so views stay valid across later allocations. Exactly
	// one backing store is live, chosen by typ; Vec3 attributes carry
	// three expanded float32 streams instead.
	chunks     any // [][]float32, [][]uint32, [][]uint16 or [][]uint8
	vx, vy, vz [][]float32

	defF32  float32
	defU32  uint32
	defU16  uint16
	defU8   uint8
	defVec3 mgl32.Vec3
}

// Registry owns attribute definitions and the brick slot pool. All brick
// views hand out data that lives in the registry's backing chunks; slots
// are stable for the lifetime of the registry.
type Registry struct {
	mu        sync.RWMutex
	attrs     []*attribute // stable index; removed entries stay nil
	byName    map[string]int
	keyIndex  int
	slots     uint32 // high-water slot count, including freed ones
	alive     []bool // per-slot liveness
	freeList  []BrickID
	observers []Observer
}

func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]int),
		keyIndex: -1,
	}
}

// Subscribe adds an observer. Notification order follows subscription
// order and runs under the registry lock; observers must not call back in.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// RegisterKey registers the key attribute, whose non-default values define
// sparsity. Exactly one key may exist; registering it notifies observers
// with a destructive key-change event.
func (r *Registry) RegisterKey(name string, typ AttrType, def any) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keyIndex >= 0 {
		return 0, sparsevox.Errorf(sparsevox.ErrTypeMismatch,
			"key attribute already registered (%q)", r.attrs[r.keyIndex].name)
	}
	idx, err := r.registerLocked(name, typ, def)
	if err != nil {
		return 0, err
	}
	r.keyIndex = idx
	for _, o := range r.observers {
		o.OnKeyChanged(name)
	}
	return idx, nil
}

// AddAttribute registers a non-key attribute. Existing bricks grow a slot
// for it in O(brick count); every other attribute's data is untouched.
func (r *Registry) AddAttribute(name string, typ AttrType, def any) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, err := r.registerLocked(name, typ, def)
	if err != nil {
		return 0, err
	}
	for _, o := range r.observers {
		o.OnAttributeAdded(name)
	}
	return idx, nil
}

func (r *Registry) registerLocked(name string, typ AttrType, def any) (int, error) {
	if _, used := r.byName[name]; used {
		return 0, sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q already registered", name)
	}
	a := &attribute{name: name, typ: typ, index: len(r.attrs)}
	switch typ {
	case F32:
		if def != nil {
			v, ok := def.(float32)
			if !ok {
				return 0, sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q: default is not float32", name)
			}
			a.defF32 = v
		}
		a.chunks = [][]float32{}
	case U32:
		if def != nil {
			v, ok := def.(uint32)
			if !ok {
				return 0, sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q: default is not uint32", name)
			}
			a.defU32 = v
		}
		a.chunks = [][]uint32{}
	case U16:
		if def != nil {
			v, ok := def.(uint16)
			if !ok {
				return 0, sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q: default is not uint16", name)
			}
			a.defU16 = v
		}
		a.chunks = [][]uint16{}
	case U8:
		if def != nil {
			v, ok := def.(uint8)
			if !ok {
				return 0, sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q: default is not uint8", name)
			}
			a.defU8 = v
		}
		a.chunks = [][]uint8{}
	case Vec3:
		if def != nil {
			v, ok := def.(mgl32.Vec3)
			if !ok {
				return 0, sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q: default is not mgl32.Vec3", name)
			}
			a.defVec3 = v
		}
	default:
		return 0, sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q: invalid type %d", name, typ)
	}
	// Append slots for every existing brick, live or freed, so slot
	// indices line up across attributes.
	for i := uint32(0); i < r.slots; i++ {
		growAttr(a)
	}
	r.attrs = append(r.attrs, a)
	r.byName[name] = a.index
	return a.index, nil
}

func growAttr(a *attribute) {
	switch a.typ {
	case F32:
		a.chunks = append(a.chunks.([][]float32), filled(a.defF32))
	case U32:
		a.chunks = append(a.chunks.([][]uint32), filled(a.defU32))
	case U16:
		a.chunks = append(a.chunks.([][]uint16), filled(a.defU16))
	case U8:
		a.chunks = append(a.chunks.([][]uint8), filled(a.defU8))
	case Vec3:
		a.vx = append(a.vx, filled(a.defVec3.X()))
		a.vy = append(a.vy, filled(a.defVec3.Y()))
		a.vz = append(a.vz, filled(a.defVec3.Z()))
	}
}

func filled[T any](v T) []T {
	s := make([]T, BrickVoxels)
	for i := range s {
		s[i] = v
	}
	return s
}

// resetSlotLocked restores a recycled slot to attribute defaults.
func (r *Registry) resetSlotLocked(id BrickID) {
	for _, a := range r.attrs {
		if a == nil {
			continue
		}
		switch a.typ {
		case F32:
			fill(a.chunks.([][]float32)[id], a.defF32)
		case U32:
			fill(a.chunks.([][]uint32)[id], a.defU32)
		case U16:
			fill(a.chunks.([][]uint16)[id], a.defU16)
		case U8:
			fill(a.chunks.([][]uint8)[id], a.defU8)
		case Vec3:
			fill(a.vx[id], a.defVec3.X())
			fill(a.vy[id], a.defVec3.Y())
			fill(a.vz[id], a.defVec3.Z())
		}
	}
}

func fill[T any](s []T, v T) {
	for i := range s {
		s[i] = v
	}
}

// RemoveAttribute frees an attribute's slots across all bricks. The key
// attribute cannot be removed.
func (r *Registry) RemoveAttribute(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byName[name]
	if !ok {
		return sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q not registered", name)
	}
	if idx == r.keyIndex {
		return sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q is the key and cannot be removed", name)
	}
	r.attrs[idx] = nil
	delete(r.byName, name)
	for _, o := range r.observers {
		o.OnAttributeRemoved(name)
	}
	return nil
}

// ChangeKey redesignates the key attribute. Observers are told to rebuild.
func (r *Registry) ChangeKey(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byName[name]
	if !ok {
		return sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q not registered", name)
	}
	r.keyIndex = idx
	for _, o := range r.observers {
		o.OnKeyChanged(name)
	}
	return nil
}

// KeyAttribute returns the current key attribute name, or "" if none.
func (r *Registry) KeyAttribute() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.keyIndex < 0 {
		return ""
	}
	return r.attrs[r.keyIndex].name
}

// AttributeType looks up a registered attribute's type.
func (r *Registry) AttributeType(name string) (AttrType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	if !ok {
		return 0, false
	}
	return r.attrs[idx].typ, true
}

// AttributeNames lists live attributes in registration order.
func (r *Registry) AttributeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for _, a := range r.attrs {
		if a != nil {
			names = append(names, a.name)
		}
	}
	return names
}

// AllocateBrick reserves one slot per registered attribute and returns the
// brick id. Freed slots are reused before the pool grows.
func (r *Registry) AllocateBrick() BrickID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.freeList); n > 0 {
		id := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		r.alive[id] = true
		r.resetSlotLocked(id)
		return id
	}
	id := BrickID(r.slots)
	r.slots++
	r.alive = append(r.alive, true)
	for _, a := range r.attrs {
		if a == nil {
			continue
		}
		growAttr(a)
	}
	return id
}

// FreeBrick returns a slot to the free list. Indices of other bricks are
// unaffected; the pool never compacts.
func (r *Registry) FreeBrick(id BrickID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) >= len(r.alive) || !r.alive[id] {
		return sparsevox.Errorf(sparsevox.ErrInvalidBrick, "brick %d is not allocated", id)
	}
	r.alive[id] = false
	r.freeList = append(r.freeList, id)
	return nil
}

// BrickCount returns the number of live bricks.
func (r *Registry) BrickCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.slots) - len(r.freeList)
}

// Brick returns a zero-copy view of one slot.
func (r *Registry) Brick(id BrickID) (BrickView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.alive) || !r.alive[id] {
		return BrickView{}, sparsevox.Errorf(sparsevox.ErrInvalidBrick, "brick %d is not allocated", id)
	}
	return BrickView{reg: r, id: id}, nil
}

func (r *Registry) lookup(name string) (*attribute, error) {
	idx, ok := r.byName[name]
	if !ok {
		return nil, sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q not registered", name)
	}
	a := r.attrs[idx]
	if a == nil {
		return nil, sparsevox.Errorf(sparsevox.ErrTypeMismatch, "attribute %q was removed", name)
	}
	return a, nil
}
