package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Scenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "stuck_subject.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, string(Snapshot(scenario.Name, first)), string(Snapshot(scenario.Name, second)))
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	tag := uint64(9)
	scenario := &Scenario{
		Name:        "failing",
		Description: "expects a trial that never happens",
		Start:       mustTime(t, "2024-03-05T09:00:00Z"),
		Stop:        sec(5),
		Visits:      []Visit{{Tag: tag, Arrive: sec(1), Leave: sec(3)}},
		Assertions: []Assertion{
			{Type: AssertEventOrder, Tag: &tag, Labels: []string{"entry", "check+"}},
			{Type: AssertCounter, Tag: &tag, Field: "entries", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `"check+" (position 2) not found`)
}

func TestRun_UnknownStimulus(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad
description: unknown stimulus
start: 2024-03-05T09:00:00Z
stop: 1s
experiment:
  stimulus:
    name: lasers
assertions:
  - type: outputs_low
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stimulus "lasers"`)
}
