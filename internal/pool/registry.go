package pool

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry tracks the full set of configured pools, the current pool, and
// the active strategy (spec.md §4.1). Removed pools are moved to a
// retired list and kept alive until their generation counter confirms no
// WorkUnit still references them (spec.md §9).
type Registry struct {
	mu sync.RWMutex // guards everything below (spec.md §5 control_lock)

	log *zap.SugaredLogger

	pools   []*Pool
	retired map[int]*Pool

	strategy     Strategy
	failoverOnly bool
	currentIdx   int // index into pools of the "current" pool

	lbCursor int // LOAD_BALANCE / ROUND_ROBIN rotating cursor

	rotatePeriod time.Duration
	lastRotate   time.Time
}

// NewRegistry creates an empty registry with the given strategy.
func NewRegistry(log *zap.SugaredLogger, strategy Strategy, rotatePeriod time.Duration) *Registry {
	return &Registry{
		log:          log,
		retired:      make(map[int]*Pool),
		strategy:     strategy,
		rotatePeriod: rotatePeriod,
		lastRotate:   time.Now(),
		currentIdx:   -1,
	}
}

// Add registers a new pool, assigning it the lowest priority (last).
func (r *Registry) Add(p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.PoolNo = len(r.pools)
	p.Prio = len(r.pools)
	p.Enabled = true
	p.Creds.Normalize()
	r.pools = append(r.pools, p)
	if r.currentIdx < 0 {
		r.currentIdx = 0
	}
}

// Remove detaches a pool from the lookup array but keeps the record alive
// in the retired list (in-flight WorkUnits still reference it by index+
// generation). Priorities of the remaining pools lower than the removed
// pool's are decremented (spec.md §4.1).
func (r *Registry) Remove(poolNo int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(poolNo)
	if idx < 0 {
		return fmt.Errorf("pool %d not found", poolNo)
	}
	removed := r.pools[idx]
	removedPrio := removed.Prio

	r.pools = append(r.pools[:idx], r.pools[idx+1:]...)
	removed.Generation++
	r.retired[poolNo] = removed

	for _, p := range r.pools {
		if p.Prio > removedPrio {
			p.setPriority(p.Prio - 1)
		}
	}

	if r.currentIdx >= len(r.pools) {
		r.currentIdx = len(r.pools) - 1
	}
	return nil
}

// Resolve returns the live pool for a WorkUnit's PoolRef (keyed by the
// stable pool_no, not slice position, since Remove reshuffles slice
// positions), or nil if it has been retired (the generation no longer
// matches).
func (r *Registry) Resolve(poolNo int, generation uint64) *Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.indexOf(poolNo)
	if idx < 0 {
		return nil
	}
	p := r.pools[idx]
	if p.Generation != generation {
		return nil
	}
	return p
}

func (r *Registry) indexOf(poolNo int) int {
	for i, p := range r.pools {
		if p.PoolNo == poolNo {
			return i
		}
	}
	return -1
}

// Enable/Disable toggle the operator's enabled flag for a pool.
func (r *Registry) Enable(poolNo int) error  { return r.setEnabled(poolNo, true) }
func (r *Registry) Disable(poolNo int) error { return r.setEnabled(poolNo, false) }

func (r *Registry) setEnabled(poolNo int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(poolNo)
	if idx < 0 {
		return fmt.Errorf("pool %d not found", poolNo)
	}
	r.pools[idx].Enabled = enabled
	return nil
}

// SetFailoverOnly toggles whether the registry may look beyond the
// primary pool when the caller signals lagging (spec.md §4.1).
func (r *Registry) SetFailoverOnly(v bool) {
	r.mu.Lock()
	r.failoverOnly = v
	r.mu.Unlock()
}

// SwitchPools makes the pool numbered *poolNo current and gives it
// priority 0, incrementing the Prio value of every pool that had a smaller
// one (insertion-style reshuffle, spec.md §4.1). If poolNo is nil, the
// enabled, non-idle pool with the lowest Prio value becomes current and
// priorities are left unchanged — i.e. the next candidate takes over.
func (r *Registry) SwitchPools(poolNo *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.switchPoolsLocked(poolNo)
}

func (r *Registry) switchPoolsLocked(poolNo *int) {
	var target *Pool
	if poolNo != nil {
		if idx := r.indexOf(*poolNo); idx >= 0 {
			target = r.pools[idx]
		}
	} else {
		target = r.bestCandidateLocked()
	}
	if target == nil {
		return
	}
	if poolNo == nil || target.Prio == 0 {
		r.setCurrentLocked(target)
		return
	}
	oldPrio := target.Prio
	for _, p := range r.pools {
		if p != target && p.Prio < oldPrio {
			p.setPriority(p.Prio + 1)
		}
	}
	target.setPriority(0)
	r.setCurrentLocked(target)
}

func (r *Registry) setCurrentLocked(p *Pool) {
	for i, q := range r.pools {
		if q == p {
			r.currentIdx = i
			return
		}
	}
}

// bestCandidateLocked returns the enabled, non-idle pool with lowest
// priority, or nil if none qualify.
func (r *Registry) bestCandidateLocked() *Pool {
	var best *Pool
	for _, p := range r.pools {
		if !p.IsEnabled() || p.IsIdle() {
			continue
		}
		if best == nil || p.Priority() < best.Priority() {
			best = p
		}
	}
	return best
}

// Current returns the current pool, or nil if none is set.
func (r *Registry) Current() *Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.currentIdx < 0 || r.currentIdx >= len(r.pools) {
		return nil
	}
	return r.pools[r.currentIdx]
}

// Pools returns a snapshot slice of all live (non-retired) pools.
func (r *Registry) Pools() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pool, len(r.pools))
	copy(out, r.pools)
	return out
}

// Select returns the pool from which the Fetcher should request work next
// (spec.md §4.1).
func (r *Registry) Select(lagging bool) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.strategy {
	case Failover, Rotate:
		if c := r.currentLocked(); c != nil && c.IsEnabled() && !c.IsIdle() {
			if !lagging || r.failoverOnly {
				return c
			}
		}
		return r.failoverSelectLocked(lagging)
	case RoundRobin:
		return r.roundRobinLocked()
	case LoadBalance:
		return r.loadBalanceLocked()
	default:
		return r.currentLocked()
	}
}

func (r *Registry) currentLocked() *Pool {
	if r.currentIdx < 0 || r.currentIdx >= len(r.pools) {
		return nil
	}
	return r.pools[r.currentIdx]
}

// failoverSelectLocked picks the lowest-priority enabled, alive pool. If
// lagging is set and failover-only mode is off, this may legitimately
// return a non-primary pool to unblock the pipeline (spec.md §4.1).
func (r *Registry) failoverSelectLocked(lagging bool) *Pool {
	if lagging && !r.failoverOnly {
		if p := r.roundRobinLocked(); p != nil {
			return p
		}
	}
	best := r.bestCandidateLocked()
	if best != nil {
		return best
	}
	return r.currentLocked()
}

// roundRobinLocked advances to the next enabled, non-idle pool in
// pool_no order.
func (r *Registry) roundRobinLocked() *Pool {
	n := len(r.pools)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		r.lbCursor = (r.lbCursor + 1) % n
		p := r.pools[r.lbCursor]
		if p.IsEnabled() && !p.IsIdle() {
			return p
		}
	}
	return r.currentLocked()
}

// loadBalanceLocked advances a rotating cursor across all enabled,
// non-idle pools every call; if no alternate is alive, returns current
// (spec.md §4.1).
func (r *Registry) loadBalanceLocked() *Pool {
	n := len(r.pools)
	if n == 0 {
		return nil
	}
	start := r.lbCursor
	for i := 0; i < n; i++ {
		r.lbCursor = (r.lbCursor + 1) % n
		p := r.pools[r.lbCursor]
		if p.IsEnabled() && !p.IsIdle() {
			return p
		}
	}
	r.lbCursor = start
	return r.currentLocked()
}

// RotateNext advances the "current" pool for the ROTATE strategy,
// regardless of health, once rotatePeriod has elapsed since the last
// rotation (spec.md §4.1, §4.8; called by the watchdog).
func (r *Registry) RotateNext(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.strategy != Rotate {
		return
	}
	if now.Sub(r.lastRotate) < r.rotatePeriod {
		return
	}
	r.lastRotate = now
	n := len(r.pools)
	if n == 0 {
		return
	}
	for i := 1; i <= n; i++ {
		idx := (r.currentIdx + i) % n
		if r.pools[idx].IsEnabled() {
			r.currentIdx = idx
			return
		}
	}
}

// MarkDead marks a pool idle. Idempotent: if the pool was already idle
// this is a no-op (no duplicate warning, no IdleSince update, no switch),
// per spec.md §4.1 and §8's idempotence property.
func (r *Registry) MarkDead(p *Pool) {
	wasIdle := p.TestAndSetIdle()
	if wasIdle {
		return
	}
	p.mu.Lock()
	p.IdleSince = time.Now()
	p.mu.Unlock()
	if r.log != nil {
		r.log.Warnw("pool not responding", "pool_no", p.PoolNo, "url", p.URL)
	}
	r.SwitchPools(nil)
}

// MarkAlive clears a pool's idle flag. Reverses MarkDead only if the
// resurrected pool has higher priority (lower Prio value) than current
// and the strategy is FAILOVER (spec.md §4.1).
func (r *Registry) MarkAlive(p *Pool) {
	wasIdle := p.TestAndClearIdle()
	if !wasIdle {
		return
	}
	if r.log != nil {
		r.log.Infow("pool recovered", "pool_no", p.PoolNo, "url", p.URL)
	}

	r.mu.Lock()
	strategy := r.strategy
	cur := r.currentLocked()
	r.mu.Unlock()

	if strategy == Failover && (cur == nil || p.Priority() < cur.Priority()) {
		poolNo := p.PoolNo
		r.SwitchPools(&poolNo)
	}
}

// Strategy returns the active pool strategy.
func (r *Registry) Strategy() Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// SetStrategy changes the active strategy (operator override).
func (r *Registry) SetStrategy(s Strategy) {
	r.mu.Lock()
	r.strategy = s
	r.mu.Unlock()
}
