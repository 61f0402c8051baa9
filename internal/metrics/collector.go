package metrics

import (
	"fmt"

	"github.com/minerforge/coreminer/internal/arbiter"
	"github.com/minerforge/coreminer/internal/hasher"
	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/queue"
	"github.com/minerforge/coreminer/internal/submit"
)

// Collector samples every subsystem once per Watchdog tick and publishes
// to Prometheus; it implements watchdog.Reporter.
type Collector struct {
	m        *Metrics
	registry *pool.Registry
	q        *queue.Queue
	hashers  *hasher.Pool
	sub      *submit.Worker
	arb      *arbiter.Arbiter
}

// NewCollector builds a Collector wired to the running subsystems.
func NewCollector(m *Metrics, registry *pool.Registry, q *queue.Queue, hashers *hasher.Pool, sub *submit.Worker, arb *arbiter.Arbiter) *Collector {
	return &Collector{m: m, registry: registry, q: q, hashers: hashers, sub: sub, arb: arb}
}

// Report implements watchdog.Reporter.
func (c *Collector) Report() {
	c.m.QueueDepth.Set(float64(c.q.Len()))

	for _, h := range c.hashers.Hashers() {
		kind := "cpu"
		if h.Kind == hasher.KindGPU {
			kind = "gpu"
		}
		c.m.HashrateMhps.WithLabelValues(fmt.Sprintf("%d", h.ID), kind).Set(h.RollingMhps())
	}

	for _, p := range c.registry.Pools() {
		v := 0.0
		if p.IsIdle() {
			v = 1.0
		}
		c.m.PoolIdle.WithLabelValues(fmt.Sprintf("%d", p.PoolNo), p.URL).Set(v)
	}

	if c.sub != nil {
		stats := c.sub.Stats()
		c.m.Accepted.Set(float64(stats.Accepted))
		c.m.Rejected.Set(float64(stats.Rejected))
		c.m.Stale.Set(float64(stats.Stale))
	}

	if c.arb != nil {
		c.m.NewBlocks.Set(float64(c.arb.NewBlocks))
	}
}
