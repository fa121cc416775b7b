package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/headfix/internal/archive"
	"github.com/roach88/headfix/internal/subject"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Events   []TraceEvent // Full event trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nEvents:\n")
		for i, event := range e.Events {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, event)
		}
	}
	return buf.String()
}

func tagMatches(want *uint64, tag uint64) bool {
	return want == nil || *want == tag
}

func describeTag(tag *uint64) string {
	if tag == nil {
		return "any tag"
	}
	return fmt.Sprintf("tag %013d", *tag)
}

// assertEventOrder checks that labels appear in the given order.
// Labels don't need to be consecutive (intervening events are allowed).
func assertEventOrder(events []TraceEvent, assertion Assertion) error {
	next := 0
	for _, ev := range events {
		if next == len(assertion.Labels) {
			break
		}
		if tagMatches(assertion.Tag, ev.Tag) && ev.Label == assertion.Labels[next] {
			next++
		}
	}
	if next == len(assertion.Labels) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Expected: fmt.Sprintf("labels in order for %s: %v", describeTag(assertion.Tag), assertion.Labels),
		Actual:   fmt.Sprintf("%q (position %d) not found after the preceding labels", assertion.Labels[next], next+1),
		Events:   events,
	}
}

// assertEventCount counts archived events with the label.
func assertEventCount(ctx context.Context, arc *archive.Archive, assertion Assertion) error {
	f := archive.Filter{Label: assertion.Label}
	if assertion.Tag != nil {
		f.Tag, f.HasTag = *assertion.Tag, true
	}
	records, err := arc.Events(ctx, f)
	if err != nil {
		return fmt.Errorf("event_count: query failed: %w", err)
	}
	if len(records) != assertion.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%q archived %d times for %s", assertion.Label, assertion.Count, describeTag(assertion.Tag)),
			Actual:   fmt.Sprintf("%d times", len(records)),
		}
	}
	return nil
}

func counterValue(c subject.Counts, field string) int {
	switch field {
	case "entries":
		return c.Entries
	case "entrance_rewards":
		return c.EntranceRewards
	case "head_fixes":
		return c.HeadFixes
	case "head_fix_rewards":
		return c.HeadFixRewards
	}
	return -1
}

// assertCounter checks one statistics counter.
func assertCounter(result *Result, assertion Assertion) error {
	date := assertion.Date
	if date == "" {
		date = result.LastDate()
	}
	for _, c := range result.Counters {
		if c.Date == date && c.Tag == *assertion.Tag {
			if got := counterValue(c.Counts, assertion.Field); got != assertion.Count {
				return &AssertionError{
					Type:     AssertCounter,
					Expected: fmt.Sprintf("%s = %d for %013d on %s", assertion.Field, assertion.Count, c.Tag, date),
					Actual:   fmt.Sprintf("%d", got),
				}
			}
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertCounter,
		Expected: fmt.Sprintf("statistics row for %013d on %s", *assertion.Tag, date),
		Actual:   "not found",
	}
}

// assertActionCount counts device actions. Empty Target and Value match
// anything.
func assertActionCount(actions []TraceAction, assertion Assertion) error {
	n := 0
	for _, a := range actions {
		if a.Kind != assertion.Kind {
			continue
		}
		if assertion.Target != "" && a.Target != assertion.Target {
			continue
		}
		if assertion.Value != "" && a.Value != assertion.Value {
			continue
		}
		n++
	}
	if n != assertion.Count {
		return &AssertionError{
			Type:     AssertActionCount,
			Expected: fmt.Sprintf("%d %s actions (target=%q value=%q)", assertion.Count, assertion.Kind, assertion.Target, assertion.Value),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Archive *archive.Archive
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides archive access for event_count assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEventOrder:
			err = assertEventOrder(result.Events, assertion)
		case AssertEventCount:
			if actx == nil || actx.Archive == nil {
				err = fmt.Errorf("assertion[%d]: event_count requires archive context", i)
			} else {
				err = assertEventCount(actx.Ctx, actx.Archive, assertion)
			}
		case AssertCounter:
			err = assertCounter(result, assertion)
		case AssertActionCount:
			err = assertActionCount(result.Actions, assertion)
		case AssertOutputsLow:
			if !result.OutputsLow {
				err = &AssertionError{Type: AssertOutputsLow, Expected: "all outputs low", Actual: "an output was left high"}
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
