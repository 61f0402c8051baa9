package hasher

import (
	"sync/atomic"
	"time"
)

// minIntensity/maxIntensity bound the GPU auto-tune knob (spec.md §4.5
// "GPU-specific detail floor": dynamic intensity in [-10, 10]).
const (
	minIntensity = -10
	maxIntensity = 10

	// kernelLatencyHighMs/kernelLatencyLowMs are the two thresholds the
	// rolling per-kernel-launch latency estimate is compared against
	// (spec.md §4.5: "rolling 7-ms-target estimate of kernel latency ...
	// decrement if > 7ms average, increment if < 3ms").
	kernelLatencyHighMs = 7.0
	kernelLatencyLowMs  = 3.0

	// kernelLatencyEMAWeight weights each new sample in the rolling
	// estimate (same shape as touchReport's hashrate EMA).
	kernelLatencyEMAWeight = 0.2
)

// Intensity returns the current GPU scan intensity.
func (h *Hasher) Intensity() int {
	return int(atomic.LoadInt32(&h.scanIntensity))
}

// SetIntensity clamps and stores a new intensity value.
func (h *Hasher) SetIntensity(v int) {
	if v < minIntensity {
		v = minIntensity
	}
	if v > maxIntensity {
		v = maxIntensity
	}
	atomic.StoreInt32(&h.scanIntensity, int32(v))
}

// recordKernelLatency folds one kernel-launch latency sample (spec.md
// §4.5's unit of auto-tune feedback) into the rolling millisecond EMA.
func (h *Hasher) recordKernelLatency(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.kernelLatencyMs == 0 {
		h.kernelLatencyMs = ms
	} else {
		h.kernelLatencyMs = h.kernelLatencyMs*(1-kernelLatencyEMAWeight) + ms*kernelLatencyEMAWeight
	}
}

// KernelLatencyMs returns the current rolling per-launch latency
// estimate, in milliseconds.
func (h *Hasher) KernelLatencyMs() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kernelLatencyMs
}

// tuneIntensity nudges a GPU hasher's intensity by one step based on its
// rolling kernel-launch latency estimate (spec.md §4.5: decrement when
// the average exceeds the 7ms target, increment when it drops below 3ms).
// The resulting intensity clamps threads = 1 << (15 + intensity) in the
// Scanner implementation; that sizing is the external kernel's concern.
func (p *Pool) tuneIntensity(h *Hasher) {
	latency := h.KernelLatencyMs()
	if latency <= 0 {
		return
	}
	cur := h.Intensity()
	switch {
	case latency > kernelLatencyHighMs && cur > minIntensity:
		h.SetIntensity(cur - 1)
	case latency < kernelLatencyLowMs && cur < maxIntensity:
		h.SetIntensity(cur + 1)
	}
}
