package arbitrage

import (
	"sync"
	"time"
)

// cooldownWindow is how long a failing exchange is skipped before the engine
// queries it again.
const cooldownWindow = 60 * time.Second

// cooldownTracker remembers, per exchange, when the venue last failed for any
// symbol. While the window is active the engine skips the venue entirely
// instead of issuing requests that will likely fail again.
type cooldownTracker struct {
	mu     sync.Mutex
	until  map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func newCooldownTracker() *cooldownTracker {
	return &cooldownTracker{
		until:  make(map[string]time.Time),
		window: cooldownWindow,
		now:    time.Now,
	}
}

// Fail records a failure for exchange, starting (or extending) its window.
func (c *cooldownTracker) Fail(exchange string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[exchange] = c.now().Add(c.window)
}

// Active reports whether exchange is inside its cooldown window.
func (c *cooldownTracker) Active(exchange string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline, ok := c.until[exchange]
	if !ok {
		return false
	}
	if c.now().After(deadline) {
		delete(c.until, exchange)
		return false
	}
	return true
}
