package arbitrage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := newCooldownTracker()
	c.now = func() time.Time { return now }

	assert.False(t, c.Active("binance"))

	c.Fail("binance")
	assert.True(t, c.Active("binance"))
	assert.False(t, c.Active("bybit"), "cooldown is per exchange")

	now = now.Add(59 * time.Second)
	assert.True(t, c.Active("binance"))

	now = now.Add(2 * time.Second)
	assert.False(t, c.Active("binance"))
}

func TestRepeatedFailureExtendsWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := newCooldownTracker()
	c.now = func() time.Time { return now }

	c.Fail("okx")
	now = now.Add(30 * time.Second)
	c.Fail("okx")
	now = now.Add(45 * time.Second)
	assert.True(t, c.Active("okx"), "window restarts on each failure")
}
