// Package pool implements the Pool Registry: the set of configured
// upstream JSON-RPC pools, their priorities and health, and the
// strategy-driven selection logic (spec.md §4.1).
package pool

import (
	"strings"
	"sync"
	"time"
)

// Strategy selects which enabled, alive pool to query next.
type Strategy int

const (
	Failover Strategy = iota
	RoundRobin
	Rotate
	LoadBalance
)

func (s Strategy) String() string {
	switch s {
	case Failover:
		return "failover"
	case RoundRobin:
		return "round_robin"
	case Rotate:
		return "rotate"
	case LoadBalance:
		return "load_balance"
	default:
		return "unknown"
	}
}

// Credentials holds HTTP Basic auth identity for a pool. If only one of
// User/Pass or UserPass is supplied, the other is derived by splitting on
// the first colon (spec.md §6; SPEC_FULL.md §12 — cgminer's
// set_userpass/derivation behavior, including the no-colon fallback of
// treating the whole string as the user with an empty password).
type Credentials struct {
	User     string
	Pass     string
	UserPass string
}

// Normalize fills in whichever of (User, Pass) / UserPass is missing.
func (c *Credentials) Normalize() {
	if c.UserPass == "" && (c.User != "" || c.Pass != "") {
		c.UserPass = c.User + ":" + c.Pass
		return
	}
	if c.UserPass != "" && c.User == "" && c.Pass == "" {
		if i := strings.IndexByte(c.UserPass, ':'); i >= 0 {
			c.User = c.UserPass[:i]
			c.Pass = c.UserPass[i+1:]
		} else {
			c.User = c.UserPass
			c.Pass = ""
		}
	}
}

// Pool is a record of one upstream JSON-RPC endpoint (spec.md §3 Pool).
type Pool struct {
	mu sync.Mutex

	URL         string
	Creds       Credentials
	PoolNo      int
	Generation  uint64
	Prio        int
	Enabled     bool
	Idle        bool
	Lagging     bool
	SubmitFail  bool
	HdrPath     string // long-poll endpoint, if advertised
	IdleSince   time.Time

	Accepted            int64
	Rejected            int64
	StaleShares         int64
	DiscardedWork       int64
	GetworkRequested    int64
	GetfailOccasions    int64
	RemotefailOccasions int64
	Works               int64 // total units ever produced by this pool (SPEC_FULL.md §12)
}

// TestAndSetIdle atomically sets Idle to true and returns the previous
// value, mirroring cgminer's pool_tset — used so mark_dead only warns on
// the false->true (alive->idle) transition (spec.md §4.1 idempotence).
func (p *Pool) TestAndSetIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.Idle
	p.Idle = true
	return prev
}

// TestAndClearIdle atomically sets Idle to false and returns the previous
// value.
func (p *Pool) TestAndClearIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.Idle
	p.Idle = false
	return prev
}

// TestAndSetLagging atomically sets Lagging and returns the previous
// value (used to suppress duplicate "not providing work fast enough"
// warnings, spec.md §4.2).
func (p *Pool) TestAndSetLagging() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.Lagging
	p.Lagging = true
	return prev
}

// ClearLagging clears the lagging flag.
func (p *Pool) ClearLagging() {
	p.mu.Lock()
	p.Lagging = false
	p.mu.Unlock()
}

// IsIdle reports the pool's current idle flag.
func (p *Pool) IsIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Idle
}

// IsEnabled reports the pool's current enabled flag.
func (p *Pool) IsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Enabled
}

// Priority returns the pool's current priority.
func (p *Pool) Priority() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Prio
}

func (p *Pool) setPriority(v int) {
	p.mu.Lock()
	p.Prio = v
	p.mu.Unlock()
}

// LongPollPath returns the pool's advertised long-poll path, if any.
func (p *Pool) LongPollPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HdrPath
}

// SetLongPollPath records the path advertised by an X-Long-Polling
// response header (spec.md §3 hdr_path).
func (p *Pool) SetLongPollPath(v string) {
	p.mu.Lock()
	p.HdrPath = v
	p.mu.Unlock()
}

// SetSubmitFail records (or clears) a persistent submission failure flag.
func (p *Pool) SetSubmitFail(v bool) {
	p.mu.Lock()
	p.SubmitFail = v
	p.mu.Unlock()
}
