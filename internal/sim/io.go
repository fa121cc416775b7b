package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/headfix/internal/hw"
	"github.com/roach88/headfix/internal/testutil"
)

// Span is a half-open interval [From, To) during which an input reads high.
type Span struct {
	From time.Time
	To   time.Time
}

// IO implements hw.DigitalIO over scheduled input spans.
//
// Inputs read high inside any of their spans and low elsewhere. Outputs are
// recorded in the trace. WaitForEdge moves the clock to the first matching
// transition within the timeout, or past the whole timeout if there is none.
type IO struct {
	mu      sync.Mutex
	clock   *testutil.ManualClock
	trace   *Trace
	dirs    map[hw.Pin]hw.Direction
	spans   map[hw.Pin][]Span
	outputs map[hw.Pin]hw.Level
	fail    map[hw.Pin]error

	stopAt time.Time
	stop   func()
}

// NewIO creates an IO with no scheduled input activity.
func NewIO(clk *testutil.ManualClock, trace *Trace) *IO {
	return &IO{
		clock:   clk,
		trace:   trace,
		dirs:    make(map[hw.Pin]hw.Direction),
		spans:   make(map[hw.Pin][]Span),
		outputs: make(map[hw.Pin]hw.Level),
		fail:    make(map[hw.Pin]error),
	}
}

// Drive schedules pin to read high over [from, to).
func (s *IO) Drive(pin hw.Pin, from, to time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spans := append(s.spans[pin], Span{From: from, To: to})
	sort.Slice(spans, func(i, j int) bool { return spans[i].From.Before(spans[j].From) })
	s.spans[pin] = spans
}

// FailWrites makes every write to pin return err. A nil err clears it.
func (s *IO) FailWrites(pin hw.Pin, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, pin)
		return
	}
	s.fail[pin] = err
}

// StopAt calls stop once, from inside an edge wait, the first time the
// clock reaches deadline. Tests pass a context's cancel func so that a
// controller run ends at a known virtual time.
func (s *IO) StopAt(deadline time.Time, stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAt = deadline
	s.stop = stop
}

// Output reports the last level written to pin.
func (s *IO) Output(pin hw.Pin) hw.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[pin]
}

// Direction reports how pin was configured.
func (s *IO) Direction(pin hw.Pin) (hw.Direction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dirs[pin]
	return d, ok
}

func (s *IO) SetDirection(pin hw.Pin, dir hw.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[pin] = dir
	return nil
}

func (s *IO) Write(pin hw.Pin, level hw.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dirs[pin]; !ok || d != hw.Output {
		return fmt.Errorf("sim: write to %s which is not an output", pin)
	}
	if err := s.fail[pin]; err != nil {
		return err
	}
	s.outputs[pin] = level
	s.trace.add(Action{At: s.clock.Now(), Kind: KindWrite, Target: string(pin), Value: level.String()})
	return nil
}

func (s *IO) Read(pin hw.Pin) (hw.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dirs[pin]; ok && d == hw.Output {
		return s.outputs[pin], nil
	}
	return s.levelAt(pin, s.clock.Now()), nil
}

func (s *IO) WaitForEdge(pin hw.Pin, edge hw.Edge, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	now := s.clock.Now()
	at, ok := s.nextEdge(pin, edge, now, now.Add(timeout))
	s.mu.Unlock()

	if ok {
		s.clock.Set(at)
	} else {
		s.clock.Advance(timeout)
	}
	s.checkStop()
	return ok, nil
}

func (s *IO) checkStop() {
	s.mu.Lock()
	stop := s.stop
	due := stop != nil && !s.clock.Now().Before(s.stopAt)
	if due {
		s.stop = nil
	}
	s.mu.Unlock()
	if due {
		stop()
	}
}

// levelAt requires s.mu.
func (s *IO) levelAt(pin hw.Pin, t time.Time) hw.Level {
	for _, sp := range s.spans[pin] {
		if !t.Before(sp.From) && t.Before(sp.To) {
			return hw.High
		}
	}
	return hw.Low
}

// nextEdge finds the earliest transition of pin in (after, until] that
// matches edge. Overlapping spans only produce real level changes.
// Requires s.mu.
func (s *IO) nextEdge(pin hw.Pin, edge hw.Edge, after, until time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	consider := func(t time.Time, rising bool) {
		if !t.After(after) || t.After(until) {
			return
		}
		switch {
		case edge == hw.Rising && !rising, edge == hw.Falling && rising:
			return
		}
		before := s.levelAt(pin, t.Add(-time.Nanosecond))
		if s.levelAt(pin, t) == before {
			return
		}
		if !found || t.Before(best) {
			best, found = t, true
		}
	}
	for _, sp := range s.spans[pin] {
		consider(sp.From, true)
		consider(sp.To, false)
	}
	return best, found
}
