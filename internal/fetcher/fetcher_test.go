package fetcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/arbiter"
	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/rpcclient"
)

type fakeClient struct {
	failures int32
	result   *rpcclient.GetWorkResult
	err      error
}

func (c *fakeClient) GetWork(ctx context.Context) (*rpcclient.GetWorkResult, error) {
	if atomic.LoadInt32(&c.failures) > 0 {
		atomic.AddInt32(&c.failures, -1)
		return nil, errors.New("upstream unavailable")
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func (c *fakeClient) SubmitWork(ctx context.Context, dataHex string) (bool, error) {
	return true, nil
}

func newTestRegistry(t *testing.T) (*pool.Registry, *pool.Pool) {
	t.Helper()
	r := pool.NewRegistry(zap.NewNop().Sugar(), pool.Failover, time.Minute)
	p := &pool.Pool{URL: "http://pool.example"}
	r.Add(p)
	return r, p
}

func TestHandleBuildsUnitOnSuccess(t *testing.T) {
	registry, _ := newTestRegistry(t)
	client := &fakeClient{result: &rpcclient.GetWorkResult{
		Data:   "00",
		Target: "ff",
	}}
	out := make(chan arbiter.Handoff, 1)
	fatal := make(chan error, 1)

	f := New(zap.NewNop().Sugar(), registry, func(p *pool.Pool) rpcclient.Client { return client }, make(chan Request), out, 3, fatal)
	f.handle(context.Background(), Request{ThrID: 0})

	select {
	case h := <-out:
		assert.Equal(t, arbiter.OriginFetch, h.Origin)
	default:
		t.Fatal("expected a handoff to be produced")
	}
}

func TestHandleRetriesInlineBeforeMarkingDead(t *testing.T) {
	registry, p := newTestRegistry(t)
	client := &fakeClient{failures: 2, result: &rpcclient.GetWorkResult{Data: "00", Target: "ff"}}
	out := make(chan arbiter.Handoff, 1)
	fatal := make(chan error, 1)

	f := New(zap.NewNop().Sugar(), registry, func(p *pool.Pool) rpcclient.Client { return client }, make(chan Request), out, 3, fatal)
	f.handle(context.Background(), Request{ThrID: 0})

	require.Len(t, out, 1)
	assert.False(t, p.IsIdle())
}

func TestHandleExhaustsRetriesAndReportsFatal(t *testing.T) {
	registry, p := newTestRegistry(t)
	client := &fakeClient{err: errors.New("always fails")}
	out := make(chan arbiter.Handoff, 1)
	fatal := make(chan error, 1)

	f := New(zap.NewNop().Sugar(), registry, func(p *pool.Pool) rpcclient.Client { return client }, make(chan Request), out, 0, fatal)
	f.handle(context.Background(), Request{ThrID: 0})

	select {
	case err := <-fatal:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected a fatal error to be reported")
	}
	assert.True(t, p.IsIdle())
}
