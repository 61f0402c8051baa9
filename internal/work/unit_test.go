package work

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIDMonotonic(t *testing.T) {
	a := NextID()
	b := NextID()
	assert.Less(t, a, b)
}

func TestNonceRoundTrip(t *testing.T) {
	u := New()
	u.SetNonce(0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), u.Nonce())
}

func TestTimestampRoundTrip(t *testing.T) {
	u := New()
	u.SetTimestamp(12345)
	assert.Equal(t, uint32(12345), u.Timestamp())
}

func TestRollTimestampAdvancesAndResetsNonce(t *testing.T) {
	u := New()
	u.SetTimestamp(100)
	u.SetNonce(999)
	u.RollTime = true

	u.RollTimestamp()

	assert.Equal(t, uint32(101), u.Timestamp())
	assert.Equal(t, uint32(0), u.Nonce())
	assert.Equal(t, 1, u.Rolls)
}

func TestCanRoll(t *testing.T) {
	u := New()
	u.RollTime = true
	require.True(t, u.CanRoll())

	u.IsClone = true
	assert.False(t, u.CanRoll())
	u.IsClone = false

	u.Rolls = MaxRolls - 1
	assert.True(t, u.CanRoll())

	u.Rolls = MaxRolls
	assert.False(t, u.CanRoll())
	u.Rolls = 0

	u.RollTime = false
	assert.False(t, u.CanRoll())
}

func TestCloneGetsFreshIDAndResetsCloneState(t *testing.T) {
	u := New()
	u.Rolls = 3
	u.Divided = true

	c := u.Clone()

	assert.NotEqual(t, u.ID, c.ID)
	assert.True(t, c.IsClone)
	assert.Equal(t, 0, c.Rolls)
	assert.False(t, c.Divided)
}

func TestShallowCopyKeepsStateButFreshID(t *testing.T) {
	u := New()
	u.Rolls = 2
	u.RollTime = true

	c := u.ShallowCopy()

	assert.NotEqual(t, u.ID, c.ID)
	assert.Equal(t, u.Rolls, c.Rolls)
	assert.Equal(t, u.RollTime, c.RollTime)
}

func TestPrefixHexUsesFirst18Bytes(t *testing.T) {
	u := New()
	for i := 0; i < 18; i++ {
		u.Data[i] = byte(i + 1)
	}
	u.Data[18] = 0xff // must not affect the prefix

	other := New()
	copy(other.Data[:18], u.Data[:18])
	other.Data[18] = 0x00

	assert.Equal(t, u.PrefixHex(), other.PrefixHex())
}
