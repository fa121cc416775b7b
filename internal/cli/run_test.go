package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/headfix/internal/hw"
	"github.com/roach88/headfix/internal/sim"
)

const runExperiment = `timezone: UTC
stimulus:
  name: rewards
  config:
    count: 2
    interval: 0.5
`

func TestRun_SimulatedDay(t *testing.T) {
	rig := useRig(t)
	cage, data := writeCage(t)
	exp := writeFile(t, "experiment.yaml", runExperiment)
	db := filepath.Join(t.TempDir(), "headfix.db")

	rig.AddVisit(sim.Visit{
		Tag:      testTag,
		Arrive:   time.Second,
		Leave:    20 * time.Second,
		Contacts: []sim.Contact{{From: 3 * time.Second, To: 3200 * time.Millisecond}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rig.IO.StopAt(rig.At(30*time.Second), cancel)

	console, err := execute(t, ctx, "run", "--cage", cage, "--experiment", exp,
		"--archive", db, "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)

	assert.Contains(t, console, "1234567890123\t2024-03-05 09:00:01\tentry\n")
	assert.Contains(t, console, "0000000000000\t2024-03-05 09:00:30\tSeshEnd\n")

	logFile := filepath.Join(data, "20240305", "cage1", "TextFiles", "headFix_cage1_20240305.txt")
	body, err := os.ReadFile(logFile)
	require.NoError(t, err)
	for _, label := range []string{"SeshStart", "entry", "entryReward", "check+", "complete", "exit", "SeshEnd"} {
		assert.Contains(t, string(body), "\t"+label+"\n")
	}

	require.Len(t, rig.Camera.Videos(), 1)
	assert.Equal(t, filepath.Join(data, "20240305", "cage1", "Videos"), filepath.Dir(rig.Camera.Videos()[0]))
	for _, pin := range []hw.Pin{sim.ClampPin, sim.LEDPin, sim.RewardPin} {
		assert.Equal(t, hw.Low, rig.IO.Output(pin), pin)
	}

	out, err := execute(t, context.Background(), "stats", "--cage", cage, "--date", "20240305")
	require.NoError(t, err)
	assert.Equal(t, "1234567890123 entries=1 ent_rew=1 hfixes=1 hf_rew=2\n", out)

	out, err = execute(t, context.Background(), "trace", "--db", db, "--label", "complete")
	require.NoError(t, err)
	assert.Contains(t, out, "1 event(s)")
}

func TestRun_StartupErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing cage", func(t *testing.T) {
		useRig(t)
		_, err := execute(t, ctx, "run", "--cage", filepath.Join(t.TempDir(), "none.jsonc"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "failed to load cage settings")
	})

	t.Run("gpio unavailable", func(t *testing.T) {
		useRig(t)
		devices.GPIO = func() (GPIO, error) { return nil, errors.New("no gpiochip") }
		cage, _ := writeCage(t)

		_, err := execute(t, ctx, "run", "--cage", cage)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "failed to open gpio [E006]: no gpiochip")
	})

	t.Run("unknown stimulus", func(t *testing.T) {
		useRig(t)
		cage, _ := writeCage(t)
		exp := writeFile(t, "experiment.yaml", "stimulus:\n  name: lasers\n")

		_, err := execute(t, ctx, "run", "--cage", cage, "--experiment", exp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown stimulus "lasers"`)
	})

	t.Run("data path unusable", func(t *testing.T) {
		useRig(t)
		cage, data := writeCage(t)
		require.NoError(t, os.WriteFile(data, []byte("not a folder"), 0o644))

		_, err := execute(t, ctx, "run", "--cage", cage)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "open day")
	})
}
