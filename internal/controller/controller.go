// Package controller wires every pipeline stage — Work Fetcher, Stage
// Arbiter, Work Queue, Hasher Pool, Submit Worker, Long-Poll Listener,
// and Watchdog — into one supervised process (spec.md §9 design note:
// "a small shared Controller context threading the channels and shared
// state between tasks").
package controller

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/arbiter"
	"github.com/minerforge/coreminer/internal/config"
	"github.com/minerforge/coreminer/internal/console"
	"github.com/minerforge/coreminer/internal/device"
	"github.com/minerforge/coreminer/internal/fetcher"
	"github.com/minerforge/coreminer/internal/hasher"
	"github.com/minerforge/coreminer/internal/longpoll"
	"github.com/minerforge/coreminer/internal/metrics"
	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/queue"
	"github.com/minerforge/coreminer/internal/retry"
	"github.com/minerforge/coreminer/internal/rpcclient"
	"github.com/minerforge/coreminer/internal/submit"
	"github.com/minerforge/coreminer/internal/watchdog"
	"github.com/minerforge/coreminer/internal/work"
)

// requestBuffer/handoffBuffer/submitBuffer size the channels linking
// pipeline stages — generous enough that a momentarily slow consumer
// doesn't stall a producer (spec.md §5).
const (
	requestBuffer = 64
	handoffBuffer = 64
	submitBuffer  = 64
)

// Controller owns every subsystem and its lifecycle.
type Controller struct {
	log *zap.SugaredLogger
	cfg *config.Config

	registry *pool.Registry
	blocks   *work.BlockSet
	queue    *queue.Queue
	arb      *arbiter.Arbiter
	fetch    *fetcher.Fetcher
	lp       *longpoll.Listener
	hashers  *hasher.Pool
	sub      *submit.Worker
	wd       *watchdog.Watchdog

	metrics    *metrics.Metrics
	collector  *metrics.Collector
	metricsSrv *http.Server

	requests chan fetcher.Request
	handoff  chan arbiter.Handoff
	found    chan *work.Unit
	fatal    chan error
}

// New builds every subsystem from cfg without starting any goroutines.
func New(log *zap.SugaredLogger, cfg *config.Config, provisioner device.Provisioner) (*Controller, error) {
	registry := pool.NewRegistry(log, config.StrategyFromString(cfg.Strategy), cfg.RotatePeriod)
	for _, ps := range cfg.Pools {
		registry.Add(&pool.Pool{
			URL:   ps.URL,
			Creds: pool.Credentials{User: ps.User, Pass: ps.Pass, UserPass: ps.UserPass},
		})
	}
	registry.SetFailoverOnly(cfg.FailoverOnly)

	blocks := work.NewBlockSet()
	q := queue.New()

	requests := make(chan fetcher.Request, requestBuffer)
	handoff := make(chan arbiter.Handoff, handoffBuffer)
	found := make(chan *work.Unit, submitBuffer)
	fatalCh := make(chan error, 1)

	clients := func(p *pool.Pool) rpcclient.Client {
		return rpcclient.NewHTTPClient(p.URL, p.Creds.User, p.Creds.Pass, 15*time.Second)
	}

	// Long-poll sessions hold a blocking request open against the pool's
	// advertised X-Long-Polling path, not its ordinary getwork URL, and
	// must not inherit the regular client's fixed timeout (spec.md §4.7, §5).
	lpClients := func(p *pool.Pool) rpcclient.Client {
		lpURL := rpcclient.ResolveLongPollURL(p.URL, p.LongPollPath())
		return rpcclient.NewLongPollClient(lpURL, p.Creds.User, p.Creds.Pass)
	}

	hashersCfg := hasher.Config{
		CPUThreads:  cfg.CPUThreads,
		GPUThreads:  cfg.GPUThreads,
		ScanTime:    cfg.ScanTime,
		LogInterval: cfg.LogInterval,
		OptDynamic:  cfg.OptDynamic,
	}

	scanners := map[int]hasher.Scanner{}
	if provisioner != nil {
		descs, err := provisioner.Enumerate(context.Background())
		if err != nil {
			return nil, fmt.Errorf("enumerate devices: %w", err)
		}
		for _, d := range descs {
			s, err := provisioner.NewScanner(d)
			if err != nil {
				return nil, fmt.Errorf("provision device %d: %w", d.ID, err)
			}
			scanners[d.ID] = s
		}
	}

	hashers := hasher.New(log, hashersCfg, scanners, q, requests, found, blocks)

	arb := arbiter.New(log, blocks, q, hashers, registry)

	f := fetcher.New(log, registry, clients, requests, handoff, cfg.Retries, fatalCh)
	lp := longpoll.New(log, registry, lpClients, handoff)
	sw := submit.New(log, registry, clients, found, cfg.Retries, arb, blocks, cfg.ShareGoal, cfg.ScanTime, cfg.OptSubmitStale)

	sched, err := config.ScheduleWindow(cfg)
	if err != nil {
		return nil, err
	}

	m, reg := metrics.New()
	collector := metrics.NewCollector(m, registry, q, hashers, sw, arb)

	wd := watchdog.New(log, registry, q, hashers, pinger{clients: clients}, collector, sched, cfg.LogInterval)

	c := &Controller{
		log:       log,
		cfg:       cfg,
		registry:  registry,
		blocks:    blocks,
		queue:     q,
		arb:       arb,
		fetch:     f,
		lp:        lp,
		hashers:   hashers,
		sub:       sw,
		wd:        wd,
		metrics:   m,
		collector: collector,
		requests:  requests,
		handoff:   handoff,
		found:     found,
		fatal:     fatalCh,
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		c.metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	return c, nil
}

// Run starts every subsystem and blocks until ctx is cancelled or a fatal
// error is reported (spec.md §4.2 step 2's retry-exhaustion shutdown).
func (c *Controller) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.metricsSrv != nil {
		go func() {
			if err := c.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				c.log.Errorw("metrics server exited", "err", err)
			}
		}()
		defer c.metricsSrv.Close()
	}

	go c.fetch.Run(runCtx)
	go c.lp.Run(runCtx)
	go c.arb.Run(runCtx, c.handoff)
	go c.hashers.Run(runCtx)
	go c.sub.Run(runCtx)
	go c.wd.Run(runCtx)

	// Kick off an initial fetch per hasher so the pipeline has work to
	// stage before the first scan loop iteration.
	for _, h := range c.hashers.Hashers() {
		select {
		case c.requests <- fetcher.Request{ThrID: h.ID}:
		default:
		}
	}

	select {
	case <-ctx.Done():
		c.arb.Freeze()
		return ctx.Err()
	case err := <-c.fatal:
		c.arb.Freeze()
		return err
	case <-c.sub.Done():
		c.arb.Freeze()
		c.log.Infow("share goal reached, shutting down")
		return nil
	}
}

// pinger adapts the RPC client factory into watchdog.Pinger by issuing a
// cheap getwork probe against an idle pool.
type pinger struct {
	clients func(p *pool.Pool) rpcclient.Client
}

func (p pinger) Ping(ctx context.Context, target *pool.Pool) error {
	return retry.Do(ctx, 0, func() error {
		_, err := p.clients(target).GetWork(ctx)
		return err
	})
}
