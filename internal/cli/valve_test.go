package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/headfix/internal/hw"
	"github.com/roach88/headfix/internal/sim"
)

func TestValve_OpenThenClose(t *testing.T) {
	rig := useRig(t)
	cage, _ := writeCage(t)

	out, err := execute(t, context.Background(), "valve", "--cage", cage, "--open")
	require.NoError(t, err)
	assert.Equal(t, "✓ valve open\n", out)
	assert.Equal(t, hw.High, rig.IO.Output(sim.RewardPin))

	out, err = execute(t, context.Background(), "valve", "--cage", cage, "--close")
	require.NoError(t, err)
	assert.Equal(t, "✓ valve closed\n", out)
	assert.Equal(t, hw.Low, rig.IO.Output(sim.RewardPin))
}

func TestValve_Pulse(t *testing.T) {
	rig := useRig(t)
	cage, _ := writeCage(t)

	out, err := execute(t, context.Background(), "--format", "json", "valve", "--cage", cage,
		"--pulse", "50ms", "--count", "3", "--interval", "200ms")
	require.NoError(t, err)

	var resp struct {
		Data ValveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.Pulses)
	assert.Equal(t, "150ms", resp.Data.OpenTime.String())
	assert.Equal(t, []string{
		"0s low",
		"0s high", "50ms low",
		"250ms high", "300ms low",
		"500ms high", "550ms low",
	}, writes(rig, sim.RewardPin))
}

func TestValve_FlagErrors(t *testing.T) {
	useRig(t)
	cage, _ := writeCage(t)
	ctx := context.Background()

	_, err := execute(t, ctx, "valve", "--cage", cage)
	require.Error(t, err)

	_, err = execute(t, ctx, "valve", "--cage", cage, "--open", "--close")
	require.Error(t, err)

	_, err = execute(t, ctx, "valve", "--cage", cage, "--pulse", "0s")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, ctx, "valve", "--cage", cage, "--pulse", "10ms", "--count", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--count must be at least 1")
}
