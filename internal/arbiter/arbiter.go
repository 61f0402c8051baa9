// Package arbiter implements the Stage Arbiter: single-threaded consumer
// of freshly fetched units that detects new blocks, signals hashers to
// restart, and stages units into the Work Queue (spec.md §4.3).
package arbiter

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/queue"
	"github.com/minerforge/coreminer/internal/work"
)

// neverStaleByAge disables DrainStale's age branch so a block-change
// drain only matches on block prefix, not elapsed time (spec.md §8
// scenario 2: old-block units are discarded regardless of age).
const neverStaleByAge = time.Duration(math.MaxInt64)

// BlockChangeState is the §4.9 block-change state machine.
type BlockChangeState int

const (
	StateNone BlockChangeState = iota
	StateFirst
	StateLP
	StateDetect
)

func (s BlockChangeState) String() string {
	switch s {
	case StateFirst:
		return "first"
	case StateLP:
		return "lp"
	case StateDetect:
		return "detect"
	default:
		return "none"
	}
}

// Origin classifies how a unit arrived at the arbiter — straight fetch,
// or a long-poll push (spec.md §4.3, §4.7).
type Origin int

const (
	OriginFetch Origin = iota
	OriginLongPoll
)

// Restarter broadcasts a restart signal to every hasher (spec.md §4.3
// step 2, §9 "single-writer-many-reader boolean ... atomic flag plus a
// broadcast channel").
type Restarter interface {
	RestartAll()
}

// PoolResolver resolves a WorkUnit's weak pool reference, used to tally
// discarded_work on the producing pool when a block change drains it
// from the queue (spec.md §3 discarded_work, §8 scenario 2).
type PoolResolver interface {
	Resolve(poolNo int, generation uint64) *pool.Pool
}

// Arbiter is the Stage Arbiter task.
type Arbiter struct {
	log      *zap.SugaredLogger
	blocks   *work.BlockSet
	q        *queue.Queue
	restart  Restarter
	registry PoolResolver

	mu         sync.Mutex
	state      BlockChangeState
	suppressed bool // DETECT warning suppressed until a clean cycle
	frozen     bool

	NewBlocks int64 // count of genuinely new blocks observed
}

// New constructs a Stage Arbiter. registry may be nil (e.g. in unit
// tests that don't exercise discarded-work accounting); a nil registry
// simply skips the per-pool DiscardedWork tally on a block change.
func New(log *zap.SugaredLogger, blocks *work.BlockSet, q *queue.Queue, restart Restarter, registry PoolResolver) *Arbiter {
	return &Arbiter{
		log:      log,
		blocks:   blocks,
		q:        q,
		restart:  restart,
		registry: registry,
		state:    StateFirst,
	}
}

// Handoff pairs a unit with how it arrived, carried on the single
// channel both the Work Fetcher and Long-Poll Listener write to (spec.md
// §5: "handoff channel from Fetcher and Long-Poll to Stage Arbiter").
type Handoff struct {
	Unit   *work.Unit
	Origin Origin
}

// Run consumes handoffs from in until ctx is cancelled or the channel
// closes — the single-threaded Stage Arbiter task (spec.md §4.3, §5).
func (a *Arbiter) Run(ctx context.Context, in <-chan Handoff) {
	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-in:
			if !ok {
				return
			}
			a.Admit(h.Unit, h.Origin)
		}
	}
}

// Admit implements spec.md §4.3: compute the prefix, check/insert into
// the block set, signal hashers on a genuinely new block, and push into
// the queue (dropping if frozen).
func (a *Arbiter) Admit(u *work.Unit, origin Origin) {
	u.StagedAt = time.Now().UnixNano()
	prefix := u.PrefixHex()

	if !a.blocks.Seen(prefix) {
		isNew := a.blocks.Admit(prefix)
		if isNew {
			a.onNewBlock(prefix, origin)
		}
	}

	a.mu.Lock()
	frozen := a.frozen
	a.mu.Unlock()
	if frozen {
		return
	}

	a.q.Push(u)
}

func (a *Arbiter) onNewBlock(prefix string, origin Origin) {
	a.mu.Lock()
	prevState := a.state
	switch origin {
	case OriginLongPoll:
		a.state = StateLP
		a.suppressed = false
	case OriginFetch:
		if prevState == StateLP && !a.suppressed {
			// LP already warned about this block; suppress the
			// duplicate DETECT warning for the same cycle.
			a.suppressed = true
		} else {
			a.state = StateDetect
		}
	}
	a.NewBlocks++
	a.mu.Unlock()

	if a.log != nil {
		if origin == OriginLongPoll || !a.duplicateSuppressed() {
			a.log.Infow("new block", "prefix", prefix, "origin", originString(origin))
		}
	}

	a.drainOldBlock(prefix)

	if a.restart != nil {
		a.restart.RestartAll()
	}
}

// drainOldBlock removes units staged under the previous block from the
// queue and tallies them as discarded_work on their producing pool
// (spec.md §8 scenario 2: "staged units ... drained and counted as
// total_discarded"). now's age branch is disabled — prefix mismatch
// against the just-admitted current block is the only criterion here.
func (a *Arbiter) drainOldBlock(currentBlock string) {
	drained := a.q.DrainStale(time.Now().UnixNano(), neverStaleByAge, currentBlock)
	if a.registry == nil {
		return
	}
	for _, u := range drained {
		if p := a.registry.Resolve(u.Pool.PoolNo, u.Pool.Generation); p != nil {
			p.DiscardedWork++
		}
	}
}

func (a *Arbiter) duplicateSuppressed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.suppressed
}

func originString(o Origin) string {
	if o == OriginLongPoll {
		return "lp"
	}
	return "detect"
}

// MarkCycleClean resets the block-change state to NONE, per SPEC_FULL.md
// §13's decision for spec.md §4.3's "clean cycle" — called by the Submit
// Worker after any non-stale accepted submission.
func (a *Arbiter) MarkCycleClean() {
	a.mu.Lock()
	a.state = StateNone
	a.suppressed = false
	a.mu.Unlock()
}

// State returns the current block-change state.
func (a *Arbiter) State() BlockChangeState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Freeze stops future Admit calls from pushing into the queue (shutdown).
func (a *Arbiter) Freeze() {
	a.mu.Lock()
	a.frozen = true
	a.mu.Unlock()
}
