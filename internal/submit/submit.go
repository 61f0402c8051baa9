// Package submit implements the Submit Worker: validates a found unit is
// still current, posts it to the producing pool via SubmitWork, retries
// with backoff, and tallies accepted/rejected/stale outcomes (spec.md
// §4.6).
package submit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/retry"
	"github.com/minerforge/coreminer/internal/rpcclient"
	"github.com/minerforge/coreminer/internal/work"
)

// ClientFactory resolves the RPC client for a given pool.
type ClientFactory func(p *pool.Pool) rpcclient.Client

// Cycler is notified when a submission clears the arbiter's block-change
// suppression state (spec.md §4.3's "clean cycle").
type Cycler interface {
	MarkCycleClean()
}

// Worker is the Submit Worker task.
type Worker struct {
	log      *zap.SugaredLogger
	registry *pool.Registry
	clients  ClientFactory
	in       <-chan *work.Unit
	retries  int
	cycler   Cycler
	blocks   *work.BlockSet

	scantime    time.Duration
	submitStale bool

	shareGoal   int64
	accepted    int64
	rejected    int64
	stale       int64
	done        chan struct{}
}

// New constructs a Submit Worker. in is the channel the Hasher Pool
// writes finds to. shareGoal, if > 0, triggers a graceful shutdown once
// that many shares have been accepted (SPEC_FULL.md §12 ShareGoal).
// scantime is the same age threshold the Work Queue uses to decide
// staleness (spec.md §4.4/§4.6); submitStale is opt_submit_stale — when
// set, age/block-staleness no longer blocks submission (spec.md §4.6
// step 1, §7, §8 scenario 5).
func New(log *zap.SugaredLogger, registry *pool.Registry, clients ClientFactory, in <-chan *work.Unit, retries int, cycler Cycler, blocks *work.BlockSet, shareGoal int64, scantime time.Duration, submitStale bool) *Worker {
	return &Worker{
		log:         log,
		registry:    registry,
		clients:     clients,
		in:          in,
		retries:     retries,
		cycler:      cycler,
		blocks:      blocks,
		shareGoal:   shareGoal,
		scantime:    scantime,
		submitStale: submitStale,
		done:        make(chan struct{}),
	}
}

// Done is closed once ShareGoal is reached, signalling the controller to
// begin shutdown (SPEC_FULL.md §12).
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run drains the find channel until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-w.in:
			if !ok {
				return
			}
			w.handle(ctx, u)
		}
	}
}

func (w *Worker) handle(ctx context.Context, u *work.Unit) {
	p := w.registry.Resolve(u.Pool.PoolNo, u.Pool.Generation)
	if p == nil {
		w.log.Warnw("submit target pool retired, dropping share", "unit_id", u.ID)
		return
	}

	blockStale := w.blocks != nil && w.blocks.Current() != "" && u.PrefixHex() != w.blocks.Current()
	ageStale := w.scantime > 0 && time.Since(time.Unix(0, u.StagedAt)) >= w.scantime
	stale := blockStale || ageStale
	if stale && !w.submitStale {
		w.stale++
		p.StaleShares++
		w.log.Debugw("discarding stale share before submit", "unit_id", u.ID)
		return
	}

	err := retry.Do(ctx, w.retries, func() error {
		client := w.clients(p)
		accepted, err := client.SubmitWork(ctx, encodeHex(u))
		if err != nil {
			p.SetSubmitFail(true)
			return err
		}
		p.SetSubmitFail(false)
		if accepted {
			w.accepted++
			p.Accepted++
			if !stale {
				w.cycler.MarkCycleClean()
			}
		} else {
			w.rejected++
			p.Rejected++
		}
		return nil
	})

	if err != nil {
		w.log.Errorw("submitwork exhausted retries", "unit_id", u.ID, "err", err)
		return
	}

	if w.shareGoal > 0 && w.accepted >= w.shareGoal {
		select {
		case <-w.done:
		default:
			close(w.done)
		}
	}
}

// Stats is a point-in-time snapshot of submission outcomes.
type Stats struct {
	Accepted int64
	Rejected int64
	Stale    int64
}

// Stats returns the current outcome tallies.
func (w *Worker) Stats() Stats {
	return Stats{Accepted: w.accepted, Rejected: w.rejected, Stale: w.stale}
}

// encodeHex renders a unit's header as the getwork submission hex string.
func encodeHex(u *work.Unit) string {
	return fmt.Sprintf("%x", u.Data[:])
}
