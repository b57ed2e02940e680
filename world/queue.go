package world

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gekko3d/sparsevox"
)

// QueueConfig sizes the ingestion queue.
type QueueConfig struct {
	// Capacity is rounded up to a power of two. Default 4096.
	Capacity int
	// Workers materializing entities. Default: NumCPU, at least 1.
	Workers int
	Logger  sparsevox.Logger
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Capacity: 4096, Workers: runtime.NumCPU()}
}

// QueueStats is a point-in-time counter snapshot.
type QueueStats struct {
	Enqueued  uint64
	Processed uint64
	Failed    uint64
	Rejected  uint64 // enqueue attempts that found the ring full
}

type ringSlot struct {
	seq atomic.Uint64
	req CreationRequest
}

// IngestionQueue feeds creation requests into a World from any number of
// producer goroutines. Enqueue is non-blocking bounded-ring insertion;
// a worker pool drains the ring and materializes entities. Requests keep
// their ring order all the way into the created-entities buffer, so a
// single producer observes FIFO ids.
type IngestionQueue struct {
	world *World
	log   sparsevox.Logger

	mask  uint64
	slots []ringSlot

	enqueuePos atomic.Uint64
	dequeuePos atomic.Uint64

	running atomic.Bool
	stopped atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
	wg   sync.WaitGroup

	// Created ids are emitted in ring order: workers park results in
	// pending until the next position in line is done.
	createdMu sync.Mutex
	emitCond  *sync.Cond
	pending   map[uint64]createdEntry
	nextEmit  uint64
	created   []EntityID

	enqueued  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

type createdEntry struct {
	id EntityID
	ok bool
}

// NewIngestionQueue starts the worker pool immediately.
func NewIngestionQueue(w *World, cfg QueueConfig) *IngestionQueue {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 4096
	}
	capacity = nextPow2(capacity)
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers < 1 {
			workers = 1
		}
	}

	q := &IngestionQueue{
		world:   w,
		log:     sparsevox.OrNop(cfg.Logger),
		mask:    uint64(capacity - 1),
		slots:   make([]ringSlot, capacity),
		pending: make(map[uint64]createdEntry),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	q.cond = sync.NewCond(&q.mu)
	q.emitCond = sync.NewCond(&q.createdMu)
	q.running.Store(true)

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

func nextPow2(v int) int {
	n := 1
	for n < v {
		n <<= 1
	}
	return n
}

// Enqueue inserts one request. It never blocks: a full ring fails with
// QueueFull (retryable), a stopped queue with QueueStopped.
func (q *IngestionQueue) Enqueue(req CreationRequest) error {
	if !q.running.Load() {
		return sparsevox.Errorf(sparsevox.ErrQueueStopped, "enqueue after Stop")
	}
	pos := q.enqueuePos.Load()
	for {
		slot := &q.slots[pos&q.mask]
		seq := slot.seq.Load()
		switch {
		case seq == pos:
			if q.enqueuePos.CompareAndSwap(pos, pos+1) {
				slot.req = req
				slot.seq.Store(pos + 1)
				q.enqueued.Add(1)
				// Wake one worker. The mutex only fences the wakeup;
				// the data handoff is the slot sequence.
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return nil
			}
			pos = q.enqueuePos.Load()
		case seq < pos:
			q.rejected.Add(1)
			return sparsevox.Errorf(sparsevox.ErrQueueFull, "ring full (%d slots)", len(q.slots))
		default:
			pos = q.enqueuePos.Load()
		}
	}
}

// tryDequeue pops one request in ring order.
func (q *IngestionQueue) tryDequeue() (CreationRequest, uint64, bool) {
	pos := q.dequeuePos.Load()
	for {
		slot := &q.slots[pos&q.mask]
		seq := slot.seq.Load()
		switch {
		case seq == pos+1:
			if q.dequeuePos.CompareAndSwap(pos, pos+1) {
				req := slot.req
				slot.req = CreationRequest{}
				slot.seq.Store(pos + q.mask + 1)
				return req, pos, true
			}
			pos = q.dequeuePos.Load()
		case seq <= pos:
			return CreationRequest{}, 0, false
		default:
			pos = q.dequeuePos.Load()
		}
	}
}

func (q *IngestionQueue) worker() {
	defer q.wg.Done()
	for {
		req, pos, ok := q.tryDequeue()
		if !ok {
			if !q.running.Load() {
				// Drain once more: Stop flushes the ring before exit.
				req, pos, again := q.tryDequeue()
				if !again {
					return
				}
				q.process(req, pos)
				continue
			}
			q.mu.Lock()
			for q.running.Load() && q.empty() {
				q.cond.Wait()
			}
			q.mu.Unlock()
			continue
		}
		q.process(req, pos)
	}
}

func (q *IngestionQueue) empty() bool {
	return q.dequeuePos.Load() == q.enqueuePos.Load()
}

func (q *IngestionQueue) process(req CreationRequest, pos uint64) {
	id, err := q.world.Create(req)
	entry := createdEntry{id: id, ok: err == nil}
	if err != nil {
		// Worker errors never kill the pool; they surface in stats.
		q.failed.Add(1)
		q.log.Warnf("ingestion: entity at %v rejected: %v", req.Position, err)
	} else {
		q.processed.Add(1)
	}

	q.createdMu.Lock()
	q.pending[pos] = entry
	for {
		e, ready := q.pending[q.nextEmit]
		if !ready {
			break
		}
		delete(q.pending, q.nextEmit)
		q.nextEmit++
		if e.ok {
			q.created = append(q.created, e.id)
		}
	}
	q.emitCond.Broadcast()
	q.createdMu.Unlock()
}

// GetCreatedEntities drains the created-entity buffer. Ids appear in ring
// order, which is FIFO per producer. Never blocks. Single consumer.
func (q *IngestionQueue) GetCreatedEntities() []EntityID {
	q.createdMu.Lock()
	out := q.created
	q.created = nil
	q.createdMu.Unlock()
	return out
}

// Flush blocks until everything enqueued before the call has been
// materialized and emitted.
func (q *IngestionQueue) Flush() {
	target := q.enqueuePos.Load()
	// Wake everyone; sleeping workers may have raced the last signal.
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()

	q.createdMu.Lock()
	for q.nextEmit < target {
		q.emitCond.Wait()
	}
	q.createdMu.Unlock()
}

// Stop drains the ring, stops the workers and joins them. Subsequent
// Enqueue calls fail with QueueStopped. Idempotent.
func (q *IngestionQueue) Stop() {
	if q.stopped.Swap(true) {
		return
	}
	q.running.Store(false)
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
	// Workers drain the ring before exiting, so joining them is the
	// flush: every accepted request is in the world afterwards.
	q.wg.Wait()
}

// Stats returns current counters.
func (q *IngestionQueue) Stats() QueueStats {
	return QueueStats{
		Enqueued:  q.enqueued.Load(),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Rejected:  q.rejected.Load(),
	}
}
