package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialsNormalizeFromUserPass(t *testing.T) {
	c := Credentials{User: "alice", Pass: "secret"}
	c.Normalize()
	assert.Equal(t, "alice:secret", c.UserPass)
}

func TestCredentialsNormalizeFromCombined(t *testing.T) {
	c := Credentials{UserPass: "alice:secret"}
	c.Normalize()
	assert.Equal(t, "alice", c.User)
	assert.Equal(t, "secret", c.Pass)
}

func TestCredentialsNormalizeNoColonFallback(t *testing.T) {
	c := Credentials{UserPass: "justauser"}
	c.Normalize()
	assert.Equal(t, "justauser", c.User)
	assert.Equal(t, "", c.Pass)
}

func TestTestAndSetIdleIdempotent(t *testing.T) {
	p := &Pool{}
	assert.False(t, p.TestAndSetIdle())
	assert.True(t, p.TestAndSetIdle())
	assert.True(t, p.IsIdle())
}

func TestTestAndClearIdle(t *testing.T) {
	p := &Pool{}
	p.TestAndSetIdle()
	assert.True(t, p.TestAndClearIdle())
	assert.False(t, p.TestAndClearIdle())
	assert.False(t, p.IsIdle())
}

func TestTestAndSetLagging(t *testing.T) {
	p := &Pool{}
	assert.False(t, p.TestAndSetLagging())
	assert.True(t, p.TestAndSetLagging())
	p.ClearLagging()
	assert.False(t, p.TestAndSetLagging())
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "failover", Failover.String())
	assert.Equal(t, "round_robin", RoundRobin.String())
	assert.Equal(t, "rotate", Rotate.String())
	assert.Equal(t, "load_balance", LoadBalance.String())
}
