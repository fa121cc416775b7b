package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a result as stable text for golden comparison: the
// event trace, the device actions and the final statistics rows.
func Snapshot(name string, result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	fmt.Fprintln(&buf, "\n# events")
	for _, e := range result.Events {
		fmt.Fprintln(&buf, e)
	}
	fmt.Fprintln(&buf, "\n# actions")
	for _, a := range result.Actions {
		fmt.Fprintln(&buf, a)
	}
	fmt.Fprintln(&buf, "\n# statistics")
	for _, c := range result.Counters {
		fmt.Fprintln(&buf, c)
	}
	return buf.Bytes()
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
