package hasher

import (
	"context"
	"time"

	"github.com/minerforge/coreminer/internal/arbiter"
	"github.com/minerforge/coreminer/internal/fetcher"
)

// chunksPerUnit is how many scan slices a single dispatched WorkUnit is
// cut into before a fresh unit is requested — keeps restart latency
// bounded without refetching on every slice (spec.md §4.5 step 4).
const chunksPerUnit = 16

// foundAdvance is how far past a found nonce the scan cursor resumes
// within the same unit, rather than retiring it outright.
const foundAdvance = 4

// scanLoop is a single hasher's perpetual work cycle (spec.md §4.5):
// request work, scan it in bounded slices while watching for a restart
// signal or local needs_work/prefetch deadline, report finds to the
// Submit Worker, and repeat.
func (p *Pool) scanLoop(ctx context.Context, h *Hasher) {
	h.SetState(Well)
	var lastPrefetch time.Time

	for {
		if ctx.Err() != nil {
			return
		}

		if h.Paused() {
			select {
			case <-ctx.Done():
				return
			case <-h.pingCh:
			}
			continue
		}

		u, ok := p.q.Pop(p.scantime)
		if !ok {
			// No work staged; nudge the fetcher and retry rather than
			// spinning (spec.md §4.5 "needs_work").
			p.requestWork(h, p.lagging())
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		h.ConsumeRestart()
		restartCh := h.RestartChan()

		nonceStep := uint32(0xFFFFFFFF / chunksPerUnit)
		if nonceStep == 0 {
			nonceStep = 1
		}
		start := u.Nonce()
		lastPrefetch = time.Time{}

		for chunk := 0; chunk < chunksPerUnit; chunk++ {
			end := start + nonceStep
			if chunk == chunksPerUnit-1 {
				end = 0xFFFFFFFF
			}

			if p.requestInterval > 0 && (lastPrefetch.IsZero() || time.Since(lastPrefetch) >= p.requestInterval) {
				p.requestWork(h, p.lagging())
				lastPrefetch = time.Now()
			}

			scanner := p.scanners[h.ID]
			if scanner == nil {
				select {
				case <-ctx.Done():
					return
				case <-restartCh:
					goto restarted
				case <-time.After(p.scantime):
				}
				continue
			}

			scanStart := time.Now()
			result, err := scanner.Scan(ctx, u, start, end)
			elapsed := time.Since(scanStart)
			mhashes := float64(end-start) / 1e6
			h.touchReport(mhashes, elapsed)

			// Each Scan call stands in for one kernel launch (the actual
			// OpenCL kernel is an external collaborator, spec.md §1); the
			// GPU auto-tune reacts to this per-launch latency, not the
			// whole chunk loop (spec.md §4.5).
			if h.Kind == KindGPU && p.optDynamic {
				h.recordKernelLatency(elapsed)
				p.tuneIntensity(h)
			}

			if err != nil {
				h.recordHWError()
			} else if result.Found {
				if scanner.FullTest(u, result.Nonce) {
					found := u.ShallowCopy()
					found.SetNonce(result.Nonce)
					found.AwaitingSubmit = true
					select {
					case p.submit <- found:
					case <-ctx.Done():
						return
					}
					// The original unit keeps scanning past the find rather
					// than being retired outright, in case a second, lower-
					// probability match exists further into the same nonce
					// range (behavior inherited from the cgminer lineage
					// this pipeline descends from, not independently
					// derived: see scan_test.go).
					if result.Nonce >= 0xFFFFFFFF-foundAdvance {
						break
					}
					start = result.Nonce + foundAdvance
					continue
				}
				h.recordHWError()
			}

			select {
			case <-ctx.Done():
				return
			case <-restartCh:
				goto restarted
			default:
			}

			start = end
			if start == 0xFFFFFFFF {
				break
			}
		}

	restarted:
		continue
	}
}

// requestWork asks the Work Fetcher for a fresh unit on behalf of h.
func (p *Pool) requestWork(h *Hasher, lagging bool) {
	select {
	case p.requests <- fetcher.Request{ThrID: h.ID, Lagging: lagging}:
	default:
	}
}

var _ arbiter.Restarter = (*Pool)(nil)
