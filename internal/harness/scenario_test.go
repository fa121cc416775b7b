package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ms = time.Millisecond

func sec(n int) time.Duration { return time.Duration(n) * time.Second }

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "entrance_then_trial.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "entrance_then_trial", s.Name)
	assert.Equal(t, mustTime(t, "2024-03-05T09:00:00Z"), s.Start.UTC())
	assert.Equal(t, sec(30), s.Stop)
	assert.Equal(t, []float64{0}, s.Draws)
	require.Len(t, s.Visits, 1)
	assert.Equal(t, uint64(1234567890123), s.Visits[0].Tag)
	assert.Equal(t, []Contact{{From: sec(3), To: sec(4)}}, s.Visits[0].Contacts)
	require.NotNil(t, s.Assertions[0].Tag)
	assert.Equal(t, uint64(1234567890123), *s.Assertions[0].Tag)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseScenario_Invalid(t *testing.T) {
	base := "name: x\ndescription: y\nstart: 2024-03-05T09:00:00Z\nstop: 1s\n"
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", base + "assertion: []\n", "field assertion not found"},
		{"no assertions", base, "assertions list is required"},
		{"no name", "description: y\n", "name is required"},
		{"bad draw", base + "draws: [1]\nassertions: [{type: outputs_low}]\n", "outside [0,1)"},
		{"leave before arrive", base + "visits: [{tag: 1, arrive: 2s, leave: 1s}]\nassertions: [{type: outputs_low}]\n", "leave must be after arrive"},
		{"unknown assertion", base + "assertions: [{type: vibes}]\n", `unknown assertion type "vibes"`},
		{"counter without tag", base + "assertions: [{type: counter, field: entries}]\n", "tag is required for counter"},
		{"counter bad field", base + "assertions: [{type: counter, tag: 1, field: naps}]\n", `unknown counter field "naps"`},
		{"order without labels", base + "assertions: [{type: event_order}]\n", "labels list is required"},
		{"action without kind", base + "assertions: [{type: action_count}]\n", "kind is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
