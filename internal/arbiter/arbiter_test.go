package arbiter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/queue"
	"github.com/minerforge/coreminer/internal/work"
)

type countingRestarter struct {
	count int32
}

func (r *countingRestarter) RestartAll() {
	atomic.AddInt32(&r.count, 1)
}

func newUnitWithPrefix(b byte) *work.Unit {
	u := work.New()
	u.Data[0] = b
	return u
}

func TestAdmitFirstBlockRestartsHashersAndStagesUnit(t *testing.T) {
	blocks := work.NewBlockSet()
	q := queue.New()
	restarter := &countingRestarter{}
	a := New(zap.NewNop().Sugar(), blocks, q, restarter, nil)

	u := newUnitWithPrefix(1)
	a.Admit(u, OriginFetch)

	assert.Equal(t, 1, q.Len())
	assert.EqualValues(t, 1, restarter.count)
}

func TestAdmitSameBlockTwiceDoesNotRestartAgain(t *testing.T) {
	blocks := work.NewBlockSet()
	q := queue.New()
	restarter := &countingRestarter{}
	a := New(zap.NewNop().Sugar(), blocks, q, restarter, nil)

	u1 := newUnitWithPrefix(1)
	u2 := newUnitWithPrefix(1)
	a.Admit(u1, OriginFetch)
	a.Admit(u2, OriginFetch)

	assert.EqualValues(t, 1, restarter.count)
	assert.Equal(t, 2, q.Len())
}

func TestOnNewBlockLongPollSetsStateLP(t *testing.T) {
	blocks := work.NewBlockSet()
	q := queue.New()
	a := New(zap.NewNop().Sugar(), blocks, q, &countingRestarter{}, nil)

	u := newUnitWithPrefix(9)
	a.Admit(u, OriginLongPoll)

	assert.Equal(t, StateLP, a.State())
}

func TestFetchAfterLPSuppressesDuplicateDetect(t *testing.T) {
	blocks := work.NewBlockSet()
	q := queue.New()
	restarter := &countingRestarter{}
	a := New(zap.NewNop().Sugar(), blocks, q, restarter, nil)

	lpUnit := newUnitWithPrefix(7)
	a.Admit(lpUnit, OriginLongPoll)
	require.Equal(t, StateLP, a.State())

	fetchUnit := newUnitWithPrefix(8)
	a.Admit(fetchUnit, OriginFetch)

	assert.True(t, a.duplicateSuppressed())
	assert.Equal(t, StateLP, a.State())
}

func TestMarkCycleCleanResetsState(t *testing.T) {
	blocks := work.NewBlockSet()
	q := queue.New()
	a := New(zap.NewNop().Sugar(), blocks, q, &countingRestarter{}, nil)
	a.Admit(newUnitWithPrefix(1), OriginLongPoll)

	a.MarkCycleClean()

	assert.Equal(t, StateNone, a.State())
	assert.False(t, a.duplicateSuppressed())
}

func TestFreezeStopsFurtherStaging(t *testing.T) {
	blocks := work.NewBlockSet()
	q := queue.New()
	a := New(zap.NewNop().Sugar(), blocks, q, &countingRestarter{}, nil)

	a.Freeze()
	a.Admit(newUnitWithPrefix(1), OriginFetch)

	assert.Equal(t, 0, q.Len())
}

func TestRunConsumesHandoffsUntilCancelled(t *testing.T) {
	blocks := work.NewBlockSet()
	q := queue.New()
	a := New(zap.NewNop().Sugar(), blocks, q, &countingRestarter{}, nil)

	in := make(chan Handoff, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, in)
		close(done)
	}()

	in <- Handoff{Unit: newUnitWithPrefix(3), Origin: OriginFetch}
	assert.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

func TestAdmitNewBlockDrainsOldBlockAndTalliesDiscardedWork(t *testing.T) {
	blocks := work.NewBlockSet()
	q := queue.New()
	registry := pool.NewRegistry(zap.NewNop().Sugar(), pool.Failover, time.Minute)
	p := &pool.Pool{URL: "http://a"}
	registry.Add(p)
	a := New(zap.NewNop().Sugar(), blocks, q, &countingRestarter{}, registry)

	stale := newUnitWithPrefix(0xAA)
	stale.Pool = work.PoolRef{PoolNo: p.PoolNo, Generation: p.Generation}
	a.Admit(stale, OriginFetch)
	require.Equal(t, 1, q.Len())

	a.Admit(newUnitWithPrefix(0xBB), OriginFetch)

	assert.Equal(t, 1, q.Len(), "only the new block's unit should remain staged")
	assert.EqualValues(t, 1, p.DiscardedWork)
}
