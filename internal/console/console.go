// Package console defines the operator console surface (add/remove/
// enable/disable/switch pool, strategy, queue depth, scantime, retries,
// pause, intensity). The interactive terminal UI itself is out of scope
// (spec.md §1 Non-goals); this package fixes the command surface so a
// real console, a scripted one, or a test double can drive the running
// pipeline identically.
package console

import (
	"fmt"

	"github.com/minerforge/coreminer/internal/pool"
)

// Commands is the operator-facing command surface the watchdog/cmd layer
// wires a concrete console implementation against.
type Commands interface {
	AddPool(spec PoolSpec) error
	RemovePool(poolNo int) error
	EnablePool(poolNo int) error
	DisablePool(poolNo int) error
	SwitchPool(poolNo int) error
	SetStrategy(s pool.Strategy) error
	SetQueueDepth(n int) error
	SetScantimeSeconds(n int) error
	SetRetries(n int) error
	Pause(hasherID int) error
	Resume(hasherID int) error
	SetIntensity(hasherID, v int) error
}

// PoolSpec is the operator-supplied description of a pool to add.
type PoolSpec struct {
	URL      string
	User     string
	Pass     string
	UserPass string
}

// Noop is a Commands implementation that rejects every command; used
// when no interactive console is attached (headless/daemon mode).
type Noop struct{}

func (Noop) AddPool(PoolSpec) error              { return errUnsupported("add_pool") }
func (Noop) RemovePool(int) error                { return errUnsupported("remove_pool") }
func (Noop) EnablePool(int) error                { return errUnsupported("enable_pool") }
func (Noop) DisablePool(int) error               { return errUnsupported("disable_pool") }
func (Noop) SwitchPool(int) error                { return errUnsupported("switch_pool") }
func (Noop) SetStrategy(pool.Strategy) error     { return errUnsupported("set_strategy") }
func (Noop) SetQueueDepth(int) error              { return errUnsupported("set_queue_depth") }
func (Noop) SetScantimeSeconds(int) error         { return errUnsupported("set_scantime") }
func (Noop) SetRetries(int) error                 { return errUnsupported("set_retries") }
func (Noop) Pause(int) error                      { return errUnsupported("pause") }
func (Noop) Resume(int) error                     { return errUnsupported("resume") }
func (Noop) SetIntensity(int, int) error          { return errUnsupported("set_intensity") }

func errUnsupported(cmd string) error {
	return fmt.Errorf("console command %q unsupported in headless mode", cmd)
}

var _ Commands = Noop{}
