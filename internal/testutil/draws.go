package testutil

import "sync"

// FixedDraws replays a predetermined sequence of values in [0, 1).
//
// It stands in for math/rand in the controller so that the head-fix
// Bernoulli draw is deterministic. After the sequence is exhausted the
// last value repeats. An empty sequence always yields 0.
//
// Thread-safety: FixedDraws is safe for concurrent use via internal mutex.
type FixedDraws struct {
	mu     sync.Mutex
	values []float64
	idx    int
	calls  int
}

// NewFixedDraws creates a draw source returning values in order.
func NewFixedDraws(values ...float64) *FixedDraws {
	return &FixedDraws{values: values}
}

// Float64 returns the next value.
func (d *FixedDraws) Float64() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.values) == 0 {
		return 0
	}
	v := d.values[d.idx]
	if d.idx < len(d.values)-1 {
		d.idx++
	}
	return v
}

// Calls reports how many values have been drawn.
func (d *FixedDraws) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
