package longpoll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/arbiter"
	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/rpcclient"
)

type fakeLPClient struct {
	calls int32
}

func (c *fakeLPClient) GetWork(ctx context.Context) (*rpcclient.GetWorkResult, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if n == 1 {
		return &rpcclient.GetWorkResult{Data: "aa", Target: "bb"}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeLPClient) SubmitWork(ctx context.Context, dataHex string) (bool, error) {
	return true, nil
}

func TestSessionEmitsOriginLongPollHandoff(t *testing.T) {
	registry := pool.NewRegistry(zap.NewNop().Sugar(), pool.Failover, time.Minute)
	p := &pool.Pool{URL: "http://a"}
	registry.Add(p)

	client := &fakeLPClient{}
	out := make(chan arbiter.Handoff, 1)
	l := New(zap.NewNop().Sugar(), registry, func(*pool.Pool) rpcclient.Client { return client }, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.session(ctx, p)

	select {
	case h := <-out:
		assert.Equal(t, arbiter.OriginLongPoll, h.Origin)
	case <-time.After(time.Second):
		t.Fatal("expected a long-poll handoff")
	}
}

type alwaysFailClient struct{}

func (alwaysFailClient) GetWork(ctx context.Context) (*rpcclient.GetWorkResult, error) {
	return nil, errors.New("down")
}
func (alwaysFailClient) SubmitWork(ctx context.Context, dataHex string) (bool, error) {
	return false, errors.New("down")
}

func TestSessionGivesUpAfterMaxConsecutiveFailures(t *testing.T) {
	registry := pool.NewRegistry(zap.NewNop().Sugar(), pool.Failover, time.Minute)
	p := &pool.Pool{URL: "http://a"}
	registry.Add(p)

	out := make(chan arbiter.Handoff, 1)
	l := New(zap.NewNop().Sugar(), registry, func(*pool.Pool) rpcclient.Client { return alwaysFailClient{} }, out)

	done := make(chan struct{})
	go func() {
		l.session(context.Background(), p)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("session did not give up after max consecutive failures")
	}
}
