// Package fetcher implements the Work Fetcher: a single dedicated task
// that drains a command channel of GetWork requests, selects a pool via
// the Pool Registry, retries with escalating backoff, and hands the
// result to the Stage Arbiter (spec.md §4.2).
package fetcher

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/arbiter"
	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/retry"
	"github.com/minerforge/coreminer/internal/rpcclient"
	"github.com/minerforge/coreminer/internal/work"
)

// maxInlineAttempts is the number of immediate RPC attempts per request
// before counting it as a full failure and sleeping fail_pause (spec.md
// §4.2 step 2, §7 Protocol errors).
const maxInlineAttempts = 3

// Request is one GetWork command.
type Request struct {
	ThrID   int
	Lagging bool
}

// ClientFactory resolves the RPC client to use for a given pool.
type ClientFactory func(p *pool.Pool) rpcclient.Client

// Fetcher is the Work Fetcher task.
type Fetcher struct {
	log      *zap.SugaredLogger
	registry *pool.Registry
	clients  ClientFactory
	requests <-chan Request
	out      chan<- arbiter.Handoff
	retries  int
	fatal    chan<- error
}

// New constructs a Fetcher. requests is the command channel it drains;
// out is the handoff channel to the Stage Arbiter; fatal receives an
// error and triggers process shutdown once opt_retries is exceeded
// (spec.md §4.2 step 2).
func New(log *zap.SugaredLogger, registry *pool.Registry, clients ClientFactory, requests <-chan Request, out chan<- arbiter.Handoff, retries int, fatal chan<- error) *Fetcher {
	return &Fetcher{
		log:      log,
		registry: registry,
		clients:  clients,
		requests: requests,
		out:      out,
		retries:  retries,
		fatal:    fatal,
	}
}

// Run drains the request channel until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-f.requests:
			if !ok {
				return
			}
			f.handle(ctx, req)
		}
	}
}

func (f *Fetcher) handle(ctx context.Context, req Request) {
	var unit *work.Unit

	err := retry.Do(ctx, f.retries, func() error {
		p := f.registry.Select(req.Lagging)
		if p == nil {
			return fmt.Errorf("no pool available")
		}

		client := f.clients(p)
		var lastErr error
		for attempt := 0; attempt < maxInlineAttempts; attempt++ {
			result, err := client.GetWork(ctx)
			if err == nil {
				f.registry.MarkAlive(p)
				p.GetworkRequested++
				p.Works++
				if result.LPPath != "" {
					p.SetLongPollPath(result.LPPath)
				}
				unit = buildUnit(result, p)
				return nil
			}
			lastErr = err
			f.log.Debugw("getwork attempt failed", "pool_no", p.PoolNo, "attempt", attempt+1, "err", err)
		}

		p.GetfailOccasions++
		f.registry.MarkDead(p)
		return lastErr
	})

	if err != nil {
		f.log.Errorw("getwork exhausted retries", "err", err)
		select {
		case f.fatal <- err:
		default:
		}
		return
	}

	select {
	case f.out <- arbiter.Handoff{Unit: unit, Origin: arbiter.OriginFetch}:
	case <-ctx.Done():
	}
}

// buildUnit decodes a GetWorkResult into a staged-pending WorkUnit,
// stamped with a weak reference back to the producing pool.
func buildUnit(r *rpcclient.GetWorkResult, p *pool.Pool) *work.Unit {
	u := work.New()
	decodeHexInto(u.Data[:], r.Data)
	decodeHexInto(u.Midstate[:], r.Midstate)
	decodeHexInto(u.Hash1[:], r.Hash1)
	decodeHexInto(u.Target[:], r.Target)
	u.Pool = work.PoolRef{PoolNo: p.PoolNo, Generation: p.Generation}
	u.RollTime = r.RollTime
	return u
}

// decodeHexInto decodes src into dst, left-truncating/ignoring any
// malformed or short input rather than panicking — a malformed getwork
// response is a Protocol error (spec.md §7), not a crash.
func decodeHexInto(dst []byte, src string) {
	if src == "" {
		return
	}
	raw, err := hex.DecodeString(src)
	if err != nil {
		return
	}
	copy(dst, raw)
}

