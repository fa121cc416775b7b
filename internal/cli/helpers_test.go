package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/headfix/internal/camera"
	"github.com/roach88/headfix/internal/config"
	"github.com/roach88/headfix/internal/controller"
	"github.com/roach88/headfix/internal/sim"
)

const testTag uint64 = 1234567890123

var morning = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

type simGPIO struct{ *sim.IO }

func (simGPIO) Close() error { return nil }

type simTags struct{ *sim.Tags }

func (simTags) Close() error { return nil }

// useRig routes every command's hardware to a simulated cage for the rest
// of the test. Tests using it must not run in parallel.
func useRig(t *testing.T) *sim.Rig {
	t.Helper()
	rig := sim.NewRig(morning)
	prev := devices
	devices = Devices{
		GPIO: func() (GPIO, error) { return simGPIO{rig.IO}, nil },
		Tags: func(*config.Cage, *slog.Logger) (TagSource, error) {
			return simTags{rig.Tags}, nil
		},
		Camera: func(camera.Params, *slog.Logger) (controller.Camera, error) {
			return rig.Camera, nil
		},
		Clock: rig.Clock,
	}
	t.Cleanup(func() { devices = prev })
	return rig
}

// writeCage writes cage settings wired to the simulated pins and returns
// the settings path and the data path.
func writeCage(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	body := fmt.Sprintf(`{
	// simulated cage
	"Cage ID": "cage1",
	"Pistons Pin": %q,
	"Reward Pin": %q,
	"Tag In Range Pin": %q,
	"Head Contact Pin": %q,
	"LED Pin": %q,
	"Serial Port": "/dev/null",
	"Path to Save Data": %q,
}`, sim.ClampPin, sim.RewardPin, sim.PresencePin, sim.ContactPin, sim.LEDPin, data)
	path := filepath.Join(dir, "cage.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, data
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}
