// Package schedule implements the HH:MM operating window the Watchdog
// consults to pause and resume the Hasher Pool (spec.md §6).
package schedule

import (
	"fmt"
	"time"
)

// Window is a daily [Start, Stop) operating window in local wall-clock
// time. A window that wraps past midnight (Stop < Start) is treated as
// spanning the boundary, mirroring cgminer's schedule option.
type Window struct {
	Enabled bool
	Start   TimeOfDay
	Stop    TimeOfDay
}

// TimeOfDay is a minute-of-day value in [0, 1440).
type TimeOfDay int

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid schedule time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid schedule time %q: out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func minuteOfDay(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Active reports whether now falls inside the configured window. A
// disabled window is always active (no schedule restriction, spec.md §6
// default).
func (w *Window) Active(now time.Time) bool {
	if w == nil || !w.Enabled {
		return true
	}
	cur := minuteOfDay(now)
	if w.Start == w.Stop {
		return true
	}
	if w.Start < w.Stop {
		return cur >= w.Start && cur < w.Stop
	}
	// Wraps past midnight.
	return cur >= w.Start || cur < w.Stop
}
