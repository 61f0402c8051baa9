package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWorkDividesFreshUnit(t *testing.T) {
	q := New()
	u := newStagedUnit(time.Now().UnixNano())
	u.SetNonce(0)
	q.Push(u)

	got, disp, ok := q.GetWork(4, u.PrefixHex(), time.Minute, time.Second, time.Now().UnixNano())
	require.True(t, ok)
	assert.Equal(t, Cloned, disp)
	assert.True(t, got.IsClone)
	// the original stays staged, re-pushed with its nonce advanced past
	// the handed-out low half.
	assert.Equal(t, 1, q.Len())
}

func TestGetWorkRollsWhenNoNonceRoomButRollEligible(t *testing.T) {
	q := New()
	u := newStagedUnit(time.Now().UnixNano())
	u.RollTime = true
	u.SetNonce(0xFFFFFFFE) // leaves no room to divide at hashDiv=1
	q.Push(u)

	got, disp, ok := q.GetWork(1, u.PrefixHex(), time.Minute, time.Second, time.Now().UnixNano())
	require.True(t, ok)
	assert.Equal(t, Rolled, disp)
	assert.Equal(t, uint32(0), got.Nonce())
	assert.Equal(t, 1, got.Rolls)
	// a fresh-ID copy of the rolled unit is re-pushed to keep circulating.
	assert.Equal(t, 1, q.Len())
}

func TestGetWorkFreshWhenNotDivisibleAndNotRollable(t *testing.T) {
	q := New()
	u := newStagedUnit(time.Now().UnixNano())
	u.RollTime = false
	u.SetNonce(0xFFFFFFFE)
	q.Push(u)

	got, disp, ok := q.GetWork(1, u.PrefixHex(), time.Minute, time.Second, time.Now().UnixNano())
	require.True(t, ok)
	assert.Equal(t, Fresh, disp)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, 0, q.Len())
}

func TestGetWorkCloneIsNotFurtherDivided(t *testing.T) {
	q := New()
	u := newStagedUnit(time.Now().UnixNano())
	u.IsClone = true
	u.SetNonce(0)
	q.Push(u)

	got, disp, ok := q.GetWork(2, u.PrefixHex(), time.Minute, time.Second, time.Now().UnixNano())
	require.True(t, ok)
	assert.Equal(t, Fresh, disp)
	assert.Equal(t, u.ID, got.ID)
}

func TestGetWorkReturnsFalseOnEmptyQueue(t *testing.T) {
	q := New()
	_, _, ok := q.GetWork(1, "", time.Minute, 20*time.Millisecond, time.Now().UnixNano())
	assert.False(t, ok)
}
