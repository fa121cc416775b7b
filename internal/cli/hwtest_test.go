package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/headfix/internal/hw"
	"github.com/roach88/headfix/internal/sim"
)

// writes lists the writes to pin as "<offset> <level>".
func writes(rig *sim.Rig, pin hw.Pin) []string {
	var out []string
	for _, a := range rig.Trace.Filter(sim.KindWrite) {
		if a.Target == string(pin) {
			out = append(out, a.At.Sub(rig.Start).String()+" "+a.Value)
		}
	}
	return out
}

func TestHWTest_Pistons(t *testing.T) {
	rig := useRig(t)
	cage, _ := writeCage(t)

	out, err := execute(t, context.Background(), "hwtest", "pistons", "--cage", cage, "--hold", "2s")
	require.NoError(t, err)

	assert.Equal(t, "✓ pistons: clamp on for 2s\n", out)
	assert.Equal(t, []string{"0s low", "0s high", "2s low"}, writes(rig, sim.ClampPin))
	assert.Equal(t, hw.Low, rig.IO.Output(sim.LEDPin))
}

func TestHWTest_LED(t *testing.T) {
	rig := useRig(t)
	cage, _ := writeCage(t)

	_, err := execute(t, context.Background(), "hwtest", "led", "--cage", cage, "--hold", "500ms")
	require.NoError(t, err)
	assert.Equal(t, []string{"0s low", "0s high", "500ms low"}, writes(rig, sim.LEDPin))
}

func TestHWTest_Reward(t *testing.T) {
	rig := useRig(t)
	cage, _ := writeCage(t)

	out, err := execute(t, context.Background(), "hwtest", "reward", "--cage", cage)
	require.NoError(t, err)
	assert.Equal(t, "✓ reward: entrance reward, valve open 100ms\n", out)
	assert.Equal(t, []string{"0s low", "0s high", "100ms low"}, writes(rig, sim.RewardPin))

	out, err = execute(t, context.Background(), "hwtest", "reward", "--cage", cage,
		"--experiment", testExperiment, "--category", "task")
	require.NoError(t, err)
	assert.Equal(t, "✓ reward: task reward, valve open 40ms\n", out)
}

func TestHWTest_Contact(t *testing.T) {
	rig := useRig(t)
	cage, _ := writeCage(t)
	rig.IO.Drive(sim.ContactPin, rig.At(3*time.Second), rig.At(4*time.Second))

	out, err := execute(t, context.Background(), "hwtest", "contact", "--cage", cage)
	require.NoError(t, err)
	assert.Equal(t, "✓ contact: tag-in-range low, contact low, changed to high\n", out)
	assert.Equal(t, rig.At(3*time.Second), rig.Clock.Now())

	out, err = execute(t, context.Background(), "hwtest", "contact", "--cage", cage, "--wait", "5s")
	require.NoError(t, err)
	assert.Equal(t, "✓ contact: tag-in-range low, contact high, changed to low\n", out)

	out, err = execute(t, context.Background(), "hwtest", "contact", "--cage", cage, "--wait", "1s")
	require.NoError(t, err)
	assert.Equal(t, "✓ contact: tag-in-range low, contact low, no change in 1s\n", out)
}

func TestHWTest_Tag(t *testing.T) {
	rig := useRig(t)
	cage, _ := writeCage(t)
	rig.Tags.Place(testTag, rig.At(0), rig.At(10*time.Second), false)

	out, err := execute(t, context.Background(), "hwtest", "tag", "--cage", cage)
	require.NoError(t, err)
	assert.Equal(t, "✓ tag: 1234567890123\n", out)

	rig.Clock.Advance(20 * time.Second)
	_, err = execute(t, context.Background(), "hwtest", "tag", "--cage", cage)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, sim.ErrNoTag)
}

func TestHWTest_UnknownDevice(t *testing.T) {
	useRig(t)
	cage, _ := writeCage(t)

	_, err := execute(t, context.Background(), "hwtest", "laser", "--cage", cage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid argument "laser"`)
}
