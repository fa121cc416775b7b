package harness

import (
	"fmt"
	"time"

	"github.com/roach88/headfix/internal/subject"
)

// TraceEvent is one logged event, timed from the scenario start.
type TraceEvent struct {
	Offset time.Duration
	Tag    uint64
	Label  string
}

func (e TraceEvent) String() string {
	return fmt.Sprintf("%s\t%013d\t%s", e.Offset, e.Tag, e.Label)
}

// TraceAction is one device action, timed from the scenario start. Paths
// are relative to the data folder.
type TraceAction struct {
	Offset time.Duration
	Kind   string
	Target string
	Value  string
}

func (a TraceAction) String() string {
	return fmt.Sprintf("%s\t%s\t%s\t%s", a.Offset, a.Kind, a.Target, a.Value)
}

// Counter is a subject's statistics row at the end of a day.
type Counter struct {
	Date   string
	Tag    uint64
	Counts subject.Counts
}

func (c Counter) String() string {
	return fmt.Sprintf("%s\t%013d entries=%d ent_rew=%d hfixes=%d hf_rew=%d",
		c.Date, c.Tag, c.Counts.Entries, c.Counts.EntranceRewards, c.Counts.HeadFixes, c.Counts.HeadFixRewards)
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	// Dates lists the days the run touched, in order.
	Dates []string

	Events   []TraceEvent
	Actions  []TraceAction
	Counters []Counter

	// OutputsLow reports whether every output ended low.
	OutputsLow bool

	// Errors contains assertion failure messages.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// LastDate returns the date of the last day in the run.
func (r *Result) LastDate() string {
	if len(r.Dates) == 0 {
		return ""
	}
	return r.Dates[len(r.Dates)-1]
}
