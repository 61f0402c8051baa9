// Package config loads the coreminerd configuration via viper, binding
// CLI flags (urfave/cli/v2 in cmd/coreminerd) and an optional config
// file/environment overlay (spec.md §3 Config; SPEC_FULL.md §10).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/minerforge/coreminer/internal/pool"
	"github.com/minerforge/coreminer/internal/schedule"
)

// PoolSpec is one configured upstream endpoint.
type PoolSpec struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Pass     string `mapstructure:"pass"`
	UserPass string `mapstructure:"userpass"`
}

// Config is the fully resolved runtime configuration (spec.md §3).
type Config struct {
	Pools    []PoolSpec `mapstructure:"pools"`
	Strategy string     `mapstructure:"strategy"`

	CPUThreads int `mapstructure:"cpu_threads"`
	GPUThreads int `mapstructure:"gpu_threads"`

	ScanTime    time.Duration `mapstructure:"scantime"`
	LogInterval time.Duration `mapstructure:"log_interval"`
	Retries     int           `mapstructure:"retries"`
	QueueDepth  int           `mapstructure:"queue_depth"`
	RotatePeriod time.Duration `mapstructure:"rotate_period"`

	FailoverOnly bool `mapstructure:"failover_only"`
	OptDynamic   bool `mapstructure:"opt_dynamic"`
	OptSubmitStale bool `mapstructure:"opt_submit_stale"`

	ShareGoal int64 `mapstructure:"share_goal"`

	ScheduleEnabled bool   `mapstructure:"schedule_enabled"`
	ScheduleStart   string `mapstructure:"schedule_start"`
	ScheduleStop    string `mapstructure:"schedule_stop"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Defaults populates v with every setting's default value before a config
// file or flags are layered on top.
func Defaults(v *viper.Viper) {
	v.SetDefault("strategy", "failover")
	v.SetDefault("cpu_threads", 0)
	v.SetDefault("gpu_threads", 1)
	v.SetDefault("scantime", 60*time.Second)
	v.SetDefault("log_interval", 20*time.Second)
	v.SetDefault("retries", -1)
	v.SetDefault("queue_depth", 2)
	v.SetDefault("rotate_period", 0)
	v.SetDefault("failover_only", false)
	v.SetDefault("opt_dynamic", false)
	v.SetDefault("opt_submit_stale", false)
	v.SetDefault("share_goal", 0)
	v.SetDefault("schedule_enabled", false)
	v.SetDefault("metrics_addr", "")
}

// Load reads configPath (if non-empty) and environment overlay
// (COREMINER_*) into a Config, using v as the already-flag-bound Viper
// instance (spec.md §3; mirrors the teacher's flag-first, file-second
// precedence).
func Load(v *viper.Viper, configPath string) (*Config, error) {
	v.SetEnvPrefix("COREMINER")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Pools) == 0 {
		return nil, fmt.Errorf("at least one pool must be configured")
	}
	return &cfg, nil
}

// StrategyFromString resolves the configured strategy name to a
// pool.Strategy, defaulting to Failover on an unrecognized value.
func StrategyFromString(s string) pool.Strategy {
	switch s {
	case "round_robin":
		return pool.RoundRobin
	case "rotate":
		return pool.Rotate
	case "load_balance":
		return pool.LoadBalance
	default:
		return pool.Failover
	}
}

// ScheduleWindow builds a schedule.Window from the configured HH:MM
// bounds, or a disabled window if scheduling isn't enabled.
func ScheduleWindow(cfg *Config) (*schedule.Window, error) {
	if !cfg.ScheduleEnabled {
		return &schedule.Window{}, nil
	}
	start, err := schedule.ParseTimeOfDay(cfg.ScheduleStart)
	if err != nil {
		return nil, err
	}
	stop, err := schedule.ParseTimeOfDay(cfg.ScheduleStop)
	if err != nil {
		return nil, err
	}
	return &schedule.Window{Enabled: true, Start: start, Stop: stop}, nil
}
