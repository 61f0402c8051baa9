// Command coreminerd runs the multi-pool, multi-device mining
// coordinator: it fetches work from one or more JSON-RPC pools, stages
// it through the Work Queue, dispatches it to the Hasher Pool, and
// submits any finds back upstream (spec.md §1).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/minerforge/coreminer/internal/config"
	"github.com/minerforge/coreminer/internal/controller"
	"github.com/minerforge/coreminer/internal/device"
)

func main() {
	app := &cli.App{
		Name:  "coreminerd",
		Usage: "multi-pool, multi-device proof-of-work mining coordinator",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML/JSON/TOML config file"},
			&cli.StringFlag{Name: "strategy", Value: "failover", Usage: "pool selection strategy: failover, round_robin, rotate, load_balance"},
			&cli.IntFlag{Name: "cpu-threads", Value: 0, Usage: "number of CPU hasher workers"},
			&cli.IntFlag{Name: "gpu-threads", Value: 1, Usage: "number of GPU hasher workers"},
			&cli.DurationFlag{Name: "scantime", Value: 0, Usage: "maximum duration (e.g. 60s) to scan a unit before refetching (0 = default)"},
			&cli.IntFlag{Name: "retries", Value: -1, Usage: "opt_retries; -1 means retry forever"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "address to serve Prometheus metrics on, empty disables"},
			&cli.Int64Flag{Name: "share-goal", Usage: "exit gracefully after this many accepted shares (0 = unbounded)"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "coreminerd:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	sugar := log.Sugar()

	v := viper.New()
	config.Defaults(v)
	bindFlags(v, c)

	cfg, err := config.Load(v, c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctl, err := controller.New(sugar, cfg, device.FakeProvisioner{CPUCount: cfg.CPUThreads})
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		sugar.Infow("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	sugar.Infow("coreminerd starting",
		"strategy", cfg.Strategy,
		"cpu_threads", cfg.CPUThreads,
		"gpu_threads", cfg.GPUThreads,
		"pools", len(cfg.Pools),
	)

	if err := ctl.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("controller exited: %w", err)
	}
	return nil
}

// bindFlags layers urfave/cli's parsed flags over viper's defaults;
// explicit flags win over config-file/env values (spec.md §3, matching
// the teacher's flag-first precedence in main.go).
func bindFlags(v *viper.Viper, c *cli.Context) {
	if c.IsSet("strategy") {
		v.Set("strategy", c.String("strategy"))
	}
	if c.IsSet("cpu-threads") {
		v.Set("cpu_threads", c.Int("cpu-threads"))
	}
	if c.IsSet("gpu-threads") {
		v.Set("gpu_threads", c.Int("gpu-threads"))
	}
	if c.IsSet("scantime") && c.Duration("scantime") > 0 {
		v.Set("scantime", c.Duration("scantime"))
	}
	if c.IsSet("retries") {
		v.Set("retries", c.Int("retries"))
	}
	if c.IsSet("metrics-addr") {
		v.Set("metrics_addr", c.String("metrics-addr"))
	}
	if c.IsSet("share-goal") {
		v.Set("share_goal", c.Int64("share-goal"))
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg.Build()
}
