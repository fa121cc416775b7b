// Package reward drives the water solenoid and keeps per-category totals.
package reward

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/headfix/internal/clock"
)

// DefaultCategory always exists; unknown category names fall back to it.
const DefaultCategory = "default"

// DefaultDuration is the opening time of the default category when none is
// configured.
const DefaultDuration = 30 * time.Millisecond

// Valve is the solenoid output.
type Valve interface {
	SetValve(open bool) error
}

type category struct {
	duration time.Duration
	count    int
}

// Ledger dispenses rewards and counts them by category.
//
// Dispense blocks the caller for the whole opening time. Reward delivery
// is strictly ordered (open, hold, close) and never preempted.
type Ledger struct {
	valve      Valve
	clock      clock.Clock
	categories map[string]*category
	order      []string
	observe    func(category string, d time.Duration)
	logger     *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithObserver is called after every completed dispense with the category
// that was counted.
func WithObserver(fn func(category string, d time.Duration)) Option {
	return func(l *Ledger) { l.observe = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger returns a ledger whose default category opens for def.
func NewLedger(def time.Duration, valve Valve, clk clock.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		valve:      valve,
		clock:      clk,
		categories: make(map[string]*category),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.Define(DefaultCategory, def)
	return l
}

// Define sets the opening time of name. The count starts at zero on first
// definition and is preserved on redefinition.
func (l *Ledger) Define(name string, d time.Duration) {
	if c, ok := l.categories[name]; ok {
		c.duration = d
		return
	}
	l.categories[name] = &category{duration: d}
	l.order = append(l.order, name)
}

// Duration returns the opening time used for name.
func (l *Ledger) Duration(name string) time.Duration {
	return l.resolve(name).duration
}

func (l *Ledger) resolve(name string) *category {
	if c, ok := l.categories[name]; ok {
		return c
	}
	return l.categories[DefaultCategory]
}

// Dispense opens the valve for name's duration and counts the reward.
// An unknown name uses the default category's duration and count.
// The valve is closed on every path, including a panic in the driver.
func (l *Ledger) Dispense(name string) (d time.Duration, err error) {
	key := name
	if _, ok := l.categories[key]; !ok {
		key = DefaultCategory
	}
	c := l.categories[key]

	closed := false
	defer func() {
		if closed {
			return
		}
		if cerr := l.valve.SetValve(false); cerr != nil {
			l.logger.Error("failed to close reward valve", "error", cerr)
		}
	}()

	if err := l.valve.SetValve(true); err != nil {
		return 0, fmt.Errorf("open valve for %s reward: %w", name, err)
	}
	l.clock.Sleep(c.duration)
	closed = true
	if err := l.valve.SetValve(false); err != nil {
		return 0, fmt.Errorf("close valve after %s reward: %w", name, err)
	}

	c.count++
	if l.observe != nil {
		l.observe(key, c.duration)
	}
	return c.duration, nil
}

// Count returns the number of rewards dispensed under name.
func (l *Ledger) Count(name string) int {
	if c, ok := l.categories[name]; ok {
		return c.count
	}
	return 0
}

// SetCount overwrites the count of a defined category.
func (l *Ledger) SetCount(name string, n int) error {
	c, ok := l.categories[name]
	if !ok {
		return fmt.Errorf("reward category %q is not defined", name)
	}
	c.count = n
	return nil
}

// ZeroTotals resets every count.
func (l *Ledger) ZeroTotals() {
	for _, c := range l.categories {
		c.count = 0
	}
}

// TotalOpenDuration returns the sum of count times duration over all
// categories.
func (l *Ledger) TotalOpenDuration() time.Duration {
	var total time.Duration
	for _, c := range l.categories {
		total += time.Duration(c.count) * c.duration
	}
	return total
}

// String lists the counts of the named categories in definition order.
func (l *Ledger) String() string {
	var b strings.Builder
	for _, name := range l.order {
		if name == DefaultCategory {
			continue
		}
		fmt.Fprintf(&b, "%s:%d\t", name, l.categories[name].count)
	}
	return b.String()
}
