// Package longpoll implements the Long-Poll Listener: one goroutine for
// the Pool Registry's current pool, while that pool advertises an
// X-Long-Polling path, blocked in a long-running getwork call that
// returns the instant the upstream has new work (spec.md §4.7).
package longpoll

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/arbiter"
	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/rpcclient"
	"github.com/minerforge/coreminer/internal/work"
)

// maxConsecutiveFailures ends a listener's current session after this
// many failures inside the failure window (spec.md §4.7).
const maxConsecutiveFailures = 10

// failureWindow is the span within which consecutive failures are
// counted before the counter resets (spec.md §4.7).
const failureWindow = 30 * time.Second

// ClientFactory resolves the long-poll RPC client for a pool: pointed at
// the pool's advertised X-Long-Polling path (spec.md §6) rather than its
// plain getwork URL, and built with no client-side timeout (spec.md §5).
type ClientFactory func(p *pool.Pool) rpcclient.Client

// Listener supervises the long-poll goroutine for the current pool,
// restarting it whenever the Pool Registry's current pool changes and
// stopping it while the current pool advertises no LP path. A changed
// LP path does not restart the session; each request builds its client
// anew, so the new path is used from the next request on.
type Listener struct {
	log      *zap.SugaredLogger
	registry *pool.Registry
	clients  ClientFactory
	out      chan<- arbiter.Handoff

	mu        sync.Mutex
	cancelFns map[int]context.CancelFunc
}

// New constructs a Long-Poll Listener.
func New(log *zap.SugaredLogger, registry *pool.Registry, clients ClientFactory, out chan<- arbiter.Handoff) *Listener {
	return &Listener{
		log:       log,
		registry:  registry,
		clients:   clients,
		out:       out,
		cancelFns: make(map[int]context.CancelFunc),
	}
}

// Run watches the registry for the current pool and (re)starts a
// long-poll session against it, cancelling the previous session on any
// pool switch (spec.md §4.7, §4.1 "switch cancels the old LP session").
func (l *Listener) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var activePoolNo = -1
	var activeGen uint64

	for {
		select {
		case <-ctx.Done():
			l.cancelAll()
			return
		case <-ticker.C:
			cur := l.registry.Current()
			if cur == nil {
				continue
			}
			if cur.LongPollPath() == "" {
				// Nothing advertised yet (or no longer advertised) for the
				// current pool — nothing to hold a session against.
				if activePoolNo != -1 {
					l.cancelAll()
					activePoolNo = -1
				}
				continue
			}
			if cur.PoolNo == activePoolNo && cur.Generation == activeGen {
				continue
			}
			l.cancelAll()
			activePoolNo = cur.PoolNo
			activeGen = cur.Generation
			sessCtx, cancel := context.WithCancel(ctx)
			l.mu.Lock()
			l.cancelFns[cur.PoolNo] = cancel
			l.mu.Unlock()
			go l.session(sessCtx, cur)
		}
	}
}

func (l *Listener) cancelAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for no, cancel := range l.cancelFns {
		cancel()
		delete(l.cancelFns, no)
	}
}

// session runs one pool's long-poll loop until ctx is cancelled or too
// many consecutive failures accumulate within the failure window.
func (l *Listener) session(ctx context.Context, p *pool.Pool) {
	var failures int
	var windowStart time.Time

	for {
		if ctx.Err() != nil {
			return
		}

		client := l.clients(p)
		start := time.Now()
		result, err := client.GetWork(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if windowStart.IsZero() || time.Since(windowStart) > failureWindow {
				windowStart = time.Now()
				failures = 0
			}
			failures++
			l.log.Debugw("long-poll request failed", "pool_no", p.PoolNo, "failures", failures, "err", err)
			if failures >= maxConsecutiveFailures {
				l.log.Warnw("long-poll listener giving up on pool", "pool_no", p.PoolNo)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		failures = 0
		windowStart = time.Time{}

		// A long-poll response that returns almost instantly on the
		// first call is treated the same as any other push: the Stage
		// Arbiter's own admit/dedup logic classifies LP vs DETECT.
		_ = time.Since(start)

		u := work.New()
		decodeHexInto(u.Data[:], result.Data)
		decodeHexInto(u.Midstate[:], result.Midstate)
		decodeHexInto(u.Hash1[:], result.Hash1)
		decodeHexInto(u.Target[:], result.Target)
		u.Pool = work.PoolRef{PoolNo: p.PoolNo, Generation: p.Generation}
		u.RollTime = result.RollTime

		select {
		case l.out <- arbiter.Handoff{Unit: u, Origin: arbiter.OriginLongPoll}:
		case <-ctx.Done():
			return
		}
	}
}
