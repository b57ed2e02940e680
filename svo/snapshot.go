package svo

import (
	"sync/atomic"
)

// Snapshot is an immutable, refcounted view of one published octree.
// Readers hold it for the duration of a frame; the octree behind it is
// never mutated, so concurrent ray casts need no further locking.
type Snapshot struct {
	octree *Octree
	refs   atomic.Int32
}

// Octree returns the snapshot's tree. Valid until Release.
func (s *Snapshot) Octree() *Octree { return s.octree }

// Release drops the reader's reference.
func (s *Snapshot) Release() {
	s.refs.Add(-1)
}

// Refs returns the current reader count (diagnostic).
func (s *Snapshot) Refs() int32 { return s.refs.Load() }

// SnapshotContainer double-buffers octree publication: rebuilds publish
// a new snapshot atomically while the render thread keeps reading the
// previous one until it releases it. One consumer may call Acquire per
// frame; any number of builders may Publish.
type SnapshotContainer struct {
	latest atomic.Pointer[Snapshot]
}

// Publish swaps in a freshly built octree. Earlier snapshots stay alive
// while readers hold references.
func (c *SnapshotContainer) Publish(o *Octree) *Snapshot {
	s := &Snapshot{octree: o}
	c.latest.Store(s)
	return s
}

// Acquire pins the current snapshot for this frame. Returns nil when
// nothing has been published yet.
func (c *SnapshotContainer) Acquire() *Snapshot {
	s := c.latest.Load()
	if s == nil {
		return nil
	}
	s.refs.Add(1)
	return s
}
