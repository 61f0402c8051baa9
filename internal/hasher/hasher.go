// Package hasher implements the Hasher Pool: a fixed set of CPU/GPU
// worker tasks that scan nonce ranges, report hashrate, and hand finds to
// the Submit Worker (spec.md §4.5). The actual SHA-256 kernels are out of
// scope (spec.md §1) and abstracted behind the Scanner capability.
package hasher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/fetcher"
	"github.com/minerforge/coreminer/internal/queue"
	"github.com/minerforge/coreminer/internal/work"
)

// State is the §4.9 hasher life state machine.
type State int

const (
	NoStart State = iota
	Well
	Sick
	Dead
)

func (s State) String() string {
	switch s {
	case Well:
		return "well"
	case Sick:
		return "sick"
	case Dead:
		return "dead"
	default:
		return "nostart"
	}
}

// Kind distinguishes CPU from GPU hashers (spec.md §4.5 GPU-specific
// detail floor applies only to GPU workers).
type Kind int

const (
	KindCPU Kind = iota
	KindGPU
)

// ScanResult is returned by Scanner.Scan.
type ScanResult struct {
	Nonce uint32
	Found bool
}

// Scanner is the hashing-kernel capability the device provisioning layer
// supplies; the SHA-256 scan itself and OpenCL kernel details are
// external collaborators (spec.md §1).
type Scanner interface {
	// Scan hashes nonces in [start, end) against u, returning the first
	// candidate whose hash satisfies the unit's target, if any.
	Scan(ctx context.Context, u *work.Unit, start, end uint32) (ScanResult, error)
	// FullTest independently validates a candidate nonce (spec.md §4.5
	// step 3, §7 Hardware errors).
	FullTest(u *work.Unit, nonce uint32) bool
}

// Hasher is a single worker record (spec.md §3).
type Hasher struct {
	ID        int
	Kind      Kind
	DeviceRef string

	restartFlag int32         // atomic: single-writer-many-reader restart signal
	restartCh   chan struct{} // broadcast wake for the long get_work wait
	restartMu   sync.Mutex

	pingCh chan struct{} // pause/resume park channel (spec.md §4.5 step 6)

	mu              sync.Mutex
	rollingMhps     float64
	totalMhashes    float64
	accepted        int64
	rejected        int64
	hwErrors        int64
	lastReport      time.Time
	state           State
	paused          bool
	reportedGetwork bool

	// scanIntensity is the GPU-only [-10,10] auto-tune knob (spec.md §4.5).
	scanIntensity int32

	// kernelLatencyMs is the GPU-only rolling per-kernel-launch latency
	// estimate the intensity auto-tune reacts to (spec.md §4.5).
	kernelLatencyMs float64
}

// NewHasher constructs a hasher in NOSTART state.
func NewHasher(id int, kind Kind, deviceRef string) *Hasher {
	return &Hasher{
		ID:         id,
		Kind:       kind,
		DeviceRef:  deviceRef,
		restartCh:  make(chan struct{}),
		pingCh:     make(chan struct{}, 1),
		state:      NoStart,
		lastReport: time.Now(),
	}
}

// RequestRestart sets the restart flag and wakes anything parked on the
// restart channel (spec.md §9).
func (h *Hasher) RequestRestart() {
	atomic.StoreInt32(&h.restartFlag, 1)
	h.restartMu.Lock()
	close(h.restartCh)
	h.restartCh = make(chan struct{})
	h.restartMu.Unlock()
}

// ConsumeRestart reports and clears the restart flag (spec.md §3
// "cleared by the hasher").
func (h *Hasher) ConsumeRestart() bool {
	return atomic.SwapInt32(&h.restartFlag, 0) == 1
}

// RestartChan returns the current restart-wake channel.
func (h *Hasher) RestartChan() <-chan struct{} {
	h.restartMu.Lock()
	defer h.restartMu.Unlock()
	return h.restartCh
}

// Pause parks the hasher (spec.md §4.5 step 6).
func (h *Hasher) Pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

// Resume unparks a paused hasher.
func (h *Hasher) Resume() {
	h.mu.Lock()
	wasPaused := h.paused
	h.paused = false
	h.mu.Unlock()
	if wasPaused {
		select {
		case h.pingCh <- struct{}{}:
		default:
		}
	}
}

// Paused reports the current pause state.
func (h *Hasher) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// State returns the hasher's liveness state.
func (h *Hasher) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SetState updates the liveness state.
func (h *Hasher) SetState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// LastReport returns the last time this hasher reported progress.
func (h *Hasher) LastReport() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReport
}

// touchReport records a progress report and updates the rolling Mh/s EMA
// (spec.md §3 rolling_mhps).
func (h *Hasher) touchReport(mhashes float64, elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastReport = time.Now()
	h.totalMhashes += mhashes
	if elapsed <= 0 {
		return
	}
	instant := mhashes / elapsed.Seconds()
	const emaWeight = 0.2
	if h.rollingMhps == 0 {
		h.rollingMhps = instant
	} else {
		h.rollingMhps = h.rollingMhps*(1-emaWeight) + instant*emaWeight
	}
}

// RollingMhps returns the current rolling hashrate estimate.
func (h *Hasher) RollingMhps() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rollingMhps
}

// Stats snapshot for the console/metrics layer.
type Stats struct {
	Accepted  int64
	Rejected  int64
	HWErrors  int64
	Mhps      float64
	TotalMh   float64
}

// Stats returns a point-in-time snapshot.
func (h *Hasher) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Accepted: h.accepted, Rejected: h.rejected, HWErrors: h.hwErrors, Mhps: h.rollingMhps, TotalMh: h.totalMhashes}
}

func (h *Hasher) recordAccepted() { h.mu.Lock(); h.accepted++; h.mu.Unlock() }
func (h *Hasher) recordRejected() { h.mu.Lock(); h.rejected++; h.mu.Unlock() }
func (h *Hasher) recordHWError()  { h.mu.Lock(); h.hwErrors++; h.mu.Unlock() }

// Pool is the fixed Hasher Pool: gpu_threads GPU workers and cpu_threads
// CPU workers created at startup (spec.md §4.5).
type Pool struct {
	log      *zap.SugaredLogger
	hashers  []*Hasher
	scanners map[int]Scanner

	q        *queue.Queue
	requests chan<- fetcher.Request
	submit   chan<- *work.Unit
	blocks   blockChecker

	scantime       time.Duration
	requestInterval time.Duration
	logInterval    time.Duration
	optDynamic     bool
}

// blockChecker is the minimal slice of work.BlockSet the hasher pool
// needs (kept as an interface to avoid a hard dependency cycle on the
// arbiter's view of "current").
type blockChecker interface {
	Current() string
}

// Config bundles Hasher Pool construction parameters.
type Config struct {
	CPUThreads      int
	GPUThreads      int
	ScanTime        time.Duration
	LogInterval     time.Duration
	OptDynamic      bool
}

// New builds a Hasher Pool with CPUThreads+GPUThreads workers, not yet
// started.
func New(log *zap.SugaredLogger, cfg Config, scanners map[int]Scanner, q *queue.Queue, requests chan<- fetcher.Request, submit chan<- *work.Unit, blocks blockChecker) *Pool {
	p := &Pool{
		log:             log,
		q:               q,
		requests:        requests,
		submit:          submit,
		blocks:          blocks,
		scanners:        scanners,
		scantime:        cfg.ScanTime,
		requestInterval: cfg.ScanTime * 2 / 3,
		logInterval:     cfg.LogInterval,
		optDynamic:      cfg.OptDynamic,
	}
	id := 0
	for i := 0; i < cfg.GPUThreads; i++ {
		p.hashers = append(p.hashers, NewHasher(id, KindGPU, ""))
		id++
	}
	for i := 0; i < cfg.CPUThreads; i++ {
		p.hashers = append(p.hashers, NewHasher(id, KindCPU, ""))
		id++
	}
	return p
}

// Hashers returns every worker record (for the watchdog/console/metrics).
func (p *Pool) Hashers() []*Hasher {
	out := make([]*Hasher, len(p.hashers))
	copy(out, p.hashers)
	return out
}

// lagging reports whether the fetcher should be permitted to look beyond
// the primary pool for this request (spec.md §4.2): requests are
// outstanding (queue depth non-zero) while nothing has been staged yet.
func (p *Pool) lagging() bool {
	return len(p.requests) > 0 && p.q.Len() == 0
}

// RestartAll implements arbiter.Restarter: signal every hasher to drop
// its current unit and refetch (spec.md §4.3 step 2).
func (p *Pool) RestartAll() {
	for _, h := range p.hashers {
		h.RequestRestart()
	}
}

// Run starts every hasher's scan loop as a goroutine and blocks until ctx
// is cancelled.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, h := range p.hashers {
		wg.Add(1)
		go func(h *Hasher) {
			defer wg.Done()
			p.scanLoop(ctx, h)
		}(h)
	}
	<-ctx.Done()
	wg.Wait()
}
