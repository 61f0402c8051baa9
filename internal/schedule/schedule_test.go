package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(9*60+30), tod)
}

func TestParseTimeOfDayRejectsOutOfRange(t *testing.T) {
	_, err := ParseTimeOfDay("25:00")
	assert.Error(t, err)
}

func TestDisabledWindowAlwaysActive(t *testing.T) {
	w := &Window{Enabled: false}
	assert.True(t, w.Active(time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)))
}

func TestNilWindowAlwaysActive(t *testing.T) {
	var w *Window
	assert.True(t, w.Active(time.Now()))
}

func TestWindowWithinSameDay(t *testing.T) {
	start, _ := ParseTimeOfDay("09:00")
	stop, _ := ParseTimeOfDay("17:00")
	w := &Window{Enabled: true, Start: start, Stop: stop}

	assert.True(t, w.Active(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
	assert.False(t, w.Active(time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)))
}

func TestWindowWrappingMidnight(t *testing.T) {
	start, _ := ParseTimeOfDay("22:00")
	stop, _ := ParseTimeOfDay("06:00")
	w := &Window{Enabled: true, Start: start, Stop: stop}

	assert.True(t, w.Active(time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)))
	assert.True(t, w.Active(time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)))
	assert.False(t, w.Active(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
}
