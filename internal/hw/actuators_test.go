package hw

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIO struct {
	dirs     map[Pin]Direction
	levels   map[Pin]Level
	failPins map[Pin]bool
	writes   []Pin
}

func newFakeIO() *fakeIO {
	return &fakeIO{
		dirs:     make(map[Pin]Direction),
		levels:   make(map[Pin]Level),
		failPins: make(map[Pin]bool),
	}
}

func (f *fakeIO) SetDirection(pin Pin, dir Direction) error {
	f.dirs[pin] = dir
	return nil
}

func (f *fakeIO) Write(pin Pin, level Level) error {
	f.writes = append(f.writes, pin)
	if f.failPins[pin] {
		return errors.New("bus error")
	}
	f.levels[pin] = level
	return nil
}

func (f *fakeIO) Read(pin Pin) (Level, error) { return f.levels[pin], nil }

func (f *fakeIO) WaitForEdge(Pin, Edge, time.Duration) (bool, error) { return false, nil }

func newTestActuators(t *testing.T) (*Actuators, *fakeIO) {
	t.Helper()
	io := newFakeIO()
	a, err := NewActuators(io, "clamp", "led", "reward", nil)
	require.NoError(t, err)
	return a, io
}

func TestNewActuators_ConfiguresOutputsLow(t *testing.T) {
	a, io := newTestActuators(t)
	require.NotNil(t, a)

	for _, pin := range []Pin{"clamp", "led", "reward"} {
		assert.Equal(t, Output, io.dirs[pin])
		assert.Equal(t, Low, io.levels[pin])
	}
}

func TestActuators_SetDrivesPins(t *testing.T) {
	a, io := newTestActuators(t)

	require.NoError(t, a.SetClamp(true))
	require.NoError(t, a.SetLED(true))
	require.NoError(t, a.SetValve(true))
	assert.Equal(t, High, io.levels["clamp"])
	assert.Equal(t, High, io.levels["led"])
	assert.Equal(t, High, io.levels["reward"])

	require.NoError(t, a.AllOff())
	assert.Equal(t, Low, io.levels["clamp"])
	assert.Equal(t, Low, io.levels["led"])
	assert.Equal(t, Low, io.levels["reward"])
}

func TestActuators_AllOffAttemptsEveryPin(t *testing.T) {
	a, io := newTestActuators(t)
	require.NoError(t, a.SetLED(true))
	require.NoError(t, a.SetValve(true))
	io.failPins["clamp"] = true
	io.writes = nil

	err := a.AllOff()

	require.Error(t, err)
	assert.Equal(t, []Pin{"clamp", "led", "reward"}, io.writes)
	assert.Equal(t, Low, io.levels["led"])
	assert.Equal(t, Low, io.levels["reward"])
}

func TestGuard_ErrorForcesOff(t *testing.T) {
	a, io := newTestActuators(t)
	boom := errors.New("stimulus failed")

	err := a.Guard(func() error {
		require.NoError(t, a.SetClamp(true))
		require.NoError(t, a.SetLED(true))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Low, io.levels["clamp"])
	assert.Equal(t, Low, io.levels["led"])
}

func TestGuard_PanicIsRecovered(t *testing.T) {
	a, io := newTestActuators(t)

	err := a.Guard(func() error {
		_ = a.SetClamp(true)
		_ = a.SetValve(true)
		panic("camera exploded")
	})

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "camera exploded", pe.Value)
	assert.Equal(t, Low, io.levels["clamp"])
	assert.Equal(t, Low, io.levels["reward"])
}

func TestGuard_SuccessLeavesOutputsAlone(t *testing.T) {
	a, io := newTestActuators(t)

	err := a.Guard(func() error { return a.SetLED(true) })

	require.NoError(t, err)
	assert.Equal(t, High, io.levels["led"])
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "in", Input.String())
	assert.Equal(t, "falling", Falling.String())
	assert.Equal(t, "Edge(9)", Edge(9).String())
}
