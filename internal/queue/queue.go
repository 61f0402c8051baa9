// Package queue implements the Work Queue: a priority queue of pending
// WorkUnits indexed by id and ordered by staged_at (oldest first, id as
// tie-break), plus
// the clone/roll decision logic that serves dequeue requests (spec.md
// §4.4 — "the hardest logic in this module").
package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/minerforge/coreminer/internal/work"
)

// DefaultPopTimeout is the default blocking timeout for Pop (spec.md §4.4).
const DefaultPopTimeout = 60 * time.Second

// Queue is the Work Queue (spec.md §4.4). Locking follows spec.md §5's
// stgd_lock discipline: never held while acquiring a pool registry lock.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    items
	frozen  bool
	byID    map[uint64]*work.Unit
	clones  int64 // count_staged_clones
	local   int64 // local_work — units produced by clone/roll rather than RPC
}

// New creates an empty Work Queue.
func New() *Queue {
	q := &Queue{byID: make(map[uint64]*work.Unit)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push inserts a unit, resorts by staged_at ascending, and signals one
// waiter. Returns false if the queue is frozen (shutdown in progress).
func (q *Queue) Push(u *work.Unit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.frozen {
		return false
	}
	heap.Push(&q.heap, u)
	q.byID[u.ID] = u
	if u.IsClone {
		q.clones++
	}
	q.cond.Signal()
	return true
}

// Pop blocks up to timeout until the queue is non-empty or frozen, then
// returns the oldest unit. A timeout or a frozen+empty queue returns
// (nil, false).
func (q *Queue) Pop(timeout time.Duration) (*work.Unit, bool) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 {
		if q.frozen {
			return nil, false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		if !q.waitUntil(deadline) {
			return nil, false
		}
	}

	u := heap.Pop(&q.heap).(*work.Unit)
	delete(q.byID, u.ID)
	if u.IsClone {
		q.clones--
	}
	return u, true
}

// waitUntil blocks on the condition variable until signalled or the
// deadline passes. sync.Cond has no native timeout, so a helper goroutine
// wakes the waiter at the deadline — this mirrors the pthread_cond
// timedwait semantics spec.md §4.4/§5 call for without reaching for an
// external library for a single timed condition wait.
func (q *Queue) waitUntil(deadline time.Time) bool {
	timer := time.AfterFunc(time.Until(deadline), func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()
	q.cond.Wait()
	return time.Now().Before(deadline) || len(q.heap) > 0 || q.frozen
}

// Freeze marks the queue closed: subsequent Push calls fail, subsequent
// Pop calls drain remaining units then return none (spec.md §4.4, §5
// shutdown discipline).
func (q *Queue) Freeze() {
	q.mu.Lock()
	q.frozen = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// CountStagedClones returns the number of clones currently staged.
func (q *Queue) CountStagedClones() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clones
}

// LocalWork returns the running total of locally generated (cloned or
// rolled) units.
func (q *Queue) LocalWork() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.local
}

// IterStale returns ids where now-staged_at >= scantime OR the unit's
// block prefix no longer matches currentBlock (spec.md §4.4).
func (q *Queue) IterStale(now int64, scantime time.Duration, currentBlock string) []uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stale []uint64
	for _, u := range q.heap {
		age := time.Duration(now - u.StagedAt)
		if age >= scantime || u.PrefixHex() != currentBlock {
			stale = append(stale, u.ID)
		}
	}
	return stale
}

// DrainStale removes and returns every unit matching the same predicate
// as IterStale, for discarding by the Stage Arbiter / Fetcher on a block
// change (spec.md §8 scenario 2: "staged units ... drained and counted
// as total_discarded").
func (q *Queue) DrainStale(now int64, scantime time.Duration, currentBlock string) []*work.Unit {
	q.mu.Lock()
	defer q.mu.Unlock()

	var drained []*work.Unit
	var kept items
	for _, u := range q.heap {
		age := time.Duration(now - u.StagedAt)
		if age >= scantime || u.PrefixHex() != currentBlock {
			drained = append(drained, u)
			delete(q.byID, u.ID)
			if u.IsClone {
				q.clones--
			}
		} else {
			kept = append(kept, u)
		}
	}
	q.heap = kept
	heap.Init(&q.heap)
	return drained
}
