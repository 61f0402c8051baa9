// Package watchdog implements the Watchdog: a periodic supervisor tick
// that redraws console summaries, pings idle pools, rotates the ROTATE
// strategy's current pool, evaluates the operating schedule, and demotes
// hashers through the SICK/DEAD/WELL life states (spec.md §4.8, §4.9).
package watchdog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/hasher"
	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/queue"
	"github.com/minerforge/coreminer/internal/schedule"
)

// Thresholds for the per-hasher life-state transitions (spec.md §4.9):
// no report for sickTimeout -> SICK; no report for deadTimeout -> DEAD;
// a SICK or DEAD hasher whose last report is no older than wellWindow
// is returned to WELL.
const (
	sickTimeout = 60 * time.Second
	deadTimeout = 10 * time.Minute
	wellWindow  = 60 * time.Second
)

// idlePingInterval caps how often an idle pool may be pinged to test for
// recovery (spec.md §4.8: "no more than once a minute").
const idlePingInterval = time.Minute

// Pinger issues a cheap getwork probe against an idle pool to test
// whether it has recovered.
type Pinger interface {
	Ping(ctx context.Context, p *pool.Pool) error
}

// Reporter redraws whatever summary surface the operator is watching
// (console, log line, metrics scrape) once per tick.
type Reporter interface {
	Report()
}

// Watchdog is the periodic supervisor task.
type Watchdog struct {
	log      *zap.SugaredLogger
	registry *pool.Registry
	q        *queue.Queue
	hashers  *hasher.Pool
	pinger   Pinger
	reporter Reporter
	sched    *schedule.Window

	logInterval time.Duration
	lastPing    map[int]time.Time
}

// New constructs a Watchdog. logInterval drives the tick period: spec.md
// §4.8 ticks at max(LogInterval/2, 1s).
func New(log *zap.SugaredLogger, registry *pool.Registry, q *queue.Queue, hashers *hasher.Pool, pinger Pinger, reporter Reporter, sched *schedule.Window, logInterval time.Duration) *Watchdog {
	return &Watchdog{
		log:         log,
		registry:    registry,
		q:           q,
		hashers:     hashers,
		pinger:      pinger,
		reporter:    reporter,
		sched:       sched,
		logInterval: logInterval,
		lastPing:    make(map[int]time.Time),
	}
}

func (w *Watchdog) tickInterval() time.Duration {
	d := w.logInterval / 2
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Run ticks until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watchdog) tick(ctx context.Context) {
	now := time.Now()

	w.pingIdlePools(ctx, now)
	w.registry.RotateNext(now)
	w.evaluateSchedule(now)
	w.evaluateHasherHealth(now)

	if w.reporter != nil {
		w.reporter.Report()
	}
}

// pingIdlePools probes each idle pool at most once a minute (spec.md
// §4.8).
func (w *Watchdog) pingIdlePools(ctx context.Context, now time.Time) {
	if w.pinger == nil {
		return
	}
	for _, p := range w.registry.Pools() {
		if !p.IsIdle() {
			continue
		}
		last, ok := w.lastPing[p.PoolNo]
		if ok && now.Sub(last) < idlePingInterval {
			continue
		}
		w.lastPing[p.PoolNo] = now
		go func(p *pool.Pool) {
			if err := w.pinger.Ping(ctx, p); err == nil {
				w.registry.MarkAlive(p)
			}
		}(p)
	}
}

// evaluateSchedule pauses or unpauses every hasher per the configured
// operating window (spec.md §6).
func (w *Watchdog) evaluateSchedule(now time.Time) {
	if w.sched == nil || w.hashers == nil {
		return
	}
	shouldRun := w.sched.Active(now)
	for _, h := range w.hashers.Hashers() {
		if shouldRun && h.Paused() {
			h.Resume()
		} else if !shouldRun && !h.Paused() {
			h.Pause()
		}
	}
}

// evaluateHasherHealth walks every hasher's last-report timestamp and
// advances its life state (spec.md §4.9).
func (w *Watchdog) evaluateHasherHealth(now time.Time) {
	if w.hashers == nil {
		return
	}
	for _, h := range w.hashers.Hashers() {
		silence := now.Sub(h.LastReport())
		state := h.State()

		switch {
		case silence >= deadTimeout:
			if state != hasher.Dead {
				w.log.Warnw("hasher declared dead", "id", h.ID, "silence", silence)
				h.SetState(hasher.Dead)
			}
		case silence >= sickTimeout:
			if state == hasher.Well || state == hasher.NoStart {
				w.log.Warnw("hasher sick", "id", h.ID, "silence", silence)
				h.SetState(hasher.Sick)
				h.RequestRestart()
			}
		default:
			if state == hasher.Sick || state == hasher.Dead {
				if silence <= wellWindow {
					w.log.Infow("hasher recovered", "id", h.ID)
					h.SetState(hasher.Well)
				}
			} else if state == hasher.NoStart {
				h.SetState(hasher.Well)
			}
		}
	}
}
