package gate

import "sync"

// AttemptCounter tracks consecutive failed logins per IP in memory
type AttemptCounter struct {
	mu        sync.Mutex
	counts    map[string]int
	threshold int
}

// NewAttemptCounter creates a counter that trips at threshold failures
func NewAttemptCounter(threshold int) *AttemptCounter {
	if threshold < 1 {
		threshold = 1
	}
	return &AttemptCounter{
		counts:    make(map[string]int),
		threshold: threshold,
	}
}

// Fail records a failure for ip. When the count reaches the threshold the entry is
// cleared and tripped is true; exactly one caller observes each threshold crossing.
func (c *AttemptCounter) Fail(ip string) (count int, tripped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count = c.counts[ip] + 1
	if count >= c.threshold {
		delete(c.counts, ip)
		return count, true
	}
	c.counts[ip] = count
	return count, false
}

// Reset forgets all failures for ip
func (c *AttemptCounter) Reset(ip string) {
	c.mu.Lock()
	delete(c.counts, ip)
	c.mu.Unlock()
}

// Count returns the current failure count for ip
func (c *AttemptCounter) Count(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[ip]
}

// Tracked reports whether ip has a live counter entry
func (c *AttemptCounter) Tracked(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.counts[ip]
	return ok
}

// Threshold returns the configured limit
func (c *AttemptCounter) Threshold() int {
	return c.threshold
}
