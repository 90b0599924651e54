package service

import "sync"

// OccupancyCounter tracks the live number of cards considered inside the
// venue. Process-lifetime only; deliberately not recovered across restarts.
type OccupancyCounter struct {
	mu sync.Mutex
	n  int
}

func NewOccupancyCounter() *OccupancyCounter {
	return &OccupancyCounter{}
}

func (c *OccupancyCounter) Read() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Adjust applies a signed delta and clamps the result at zero.
func (c *OccupancyCounter) Adjust(delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += delta
	if c.n < 0 {
		c.n = 0
	}
	return c.n
}

// Increment clamps its magnitude non-negative before delegating to Adjust.
func (c *OccupancyCounter) Increment(delta int) int {
	if delta < 0 {
		delta = 0
	}
	return c.Adjust(delta)
}

// Decrement clamps its magnitude non-negative before delegating to Adjust.
func (c *OccupancyCounter) Decrement(delta int) int {
	if delta < 0 {
		delta = 0
	}
	return c.Adjust(-delta)
}
