package hasher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestRestartSetsFlagAndWakesWaiter(t *testing.T) {
	h := NewHasher(0, KindCPU, "")
	ch := h.RestartChan()

	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()

	h.RequestRestart()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("restart channel was not closed")
	}
	assert.True(t, h.ConsumeRestart())
	assert.False(t, h.ConsumeRestart())
}

func TestPauseResumeParksAndWakes(t *testing.T) {
	h := NewHasher(0, KindCPU, "")
	h.Pause()
	assert.True(t, h.Paused())

	h.Resume()
	assert.False(t, h.Paused())

	select {
	case <-h.pingCh:
	default:
		t.Fatal("expected Resume to signal pingCh after a pause")
	}
}

func TestTouchReportUpdatesRollingMhps(t *testing.T) {
	h := NewHasher(0, KindCPU, "")
	h.touchReport(10, time.Second)
	first := h.RollingMhps()
	assert.Equal(t, float64(10), first)

	h.touchReport(20, time.Second)
	assert.NotEqual(t, first, h.RollingMhps())
}

func TestIntensityClamps(t *testing.T) {
	h := NewHasher(0, KindGPU, "")
	h.SetIntensity(100)
	assert.Equal(t, maxIntensity, h.Intensity())

	h.SetIntensity(-100)
	assert.Equal(t, minIntensity, h.Intensity())
}

func TestNewBuildsGPUThenCPUHashers(t *testing.T) {
	p := New(nil, Config{CPUThreads: 2, GPUThreads: 1}, nil, nil, nil, nil, nil)
	hashers := p.Hashers()

	assert := assert.New(t)
	assert.Len(hashers, 3)
	assert.Equal(KindGPU, hashers[0].Kind)
	assert.Equal(KindCPU, hashers[1].Kind)
	assert.Equal(KindCPU, hashers[2].Kind)
}

func TestRestartAllSignalsEveryHasher(t *testing.T) {
	p := New(nil, Config{CPUThreads: 2}, nil, nil, nil, nil, nil)
	p.RestartAll()
	for _, h := range p.Hashers() {
		assert.True(t, h.ConsumeRestart())
	}
}
