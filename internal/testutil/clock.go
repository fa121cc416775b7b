package testutil

import (
	"sync"
	"time"
)

// ManualClock is a virtual wall clock for tests.
//
// Time only moves when Sleep, Advance or Set is called, so a controller
// polling loop driven by a ManualClock runs as fast as the CPU allows while
// producing byte-identical timestamps on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock that reads start until it is advanced.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current virtual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d without blocking.
// Negative durations are ignored.
func (c *ManualClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the clock forward by d. Negative durations are ignored,
// so the clock never runs backwards.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t if t is later than the current time.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}
