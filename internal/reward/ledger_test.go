package reward

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/headfix/internal/testutil"
)

type valveEvent struct {
	open bool
	at   time.Time
}

type recordingValve struct {
	clk     *testutil.ManualClock
	events  []valveEvent
	openErr error
}

func (v *recordingValve) SetValve(open bool) error {
	v.events = append(v.events, valveEvent{open: open, at: v.clk.Now()})
	if open && v.openErr != nil {
		return v.openErr
	}
	return nil
}

type panickingClock struct{ *testutil.ManualClock }

func (panickingClock) Sleep(time.Duration) { panic("interrupted") }

var start = time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) (*Ledger, *recordingValve, *testutil.ManualClock) {
	t.Helper()
	clk := testutil.NewManualClock(start)
	v := &recordingValve{clk: clk}
	return NewLedger(DefaultDuration, v, clk), v, clk
}

func TestDispense_HoldsValveForDuration(t *testing.T) {
	l, v, _ := newLedger(t)
	l.Define("entrance", 100*time.Millisecond)

	d, err := l.Dispense("entrance")

	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, d)
	require.Len(t, v.events, 2)
	assert.True(t, v.events[0].open)
	assert.False(t, v.events[1].open)
	assert.Equal(t, 100*time.Millisecond, v.events[1].at.Sub(v.events[0].at))
	assert.Equal(t, 1, l.Count("entrance"))
}

func TestDispense_UnknownUsesDefault(t *testing.T) {
	l, _, _ := newLedger(t)
	l.Define("task", 50*time.Millisecond)

	d, err := l.Dispense("bonus")

	require.NoError(t, err)
	assert.Equal(t, DefaultDuration, d)
	assert.Equal(t, 1, l.Count(DefaultCategory))
	assert.Equal(t, 0, l.Count("bonus"))
	assert.Equal(t, 0, l.Count("task"))
}

func TestDefine_IsIdempotentUpsert(t *testing.T) {
	l, _, _ := newLedger(t)
	l.Define("task", 50*time.Millisecond)
	_, err := l.Dispense("task")
	require.NoError(t, err)

	l.Define("task", 80*time.Millisecond)

	assert.Equal(t, 1, l.Count("task"))
	assert.Equal(t, 80*time.Millisecond, l.Duration("task"))
}

func TestTotalOpenDuration(t *testing.T) {
	l, _, _ := newLedger(t)
	l.Define("entrance", 100*time.Millisecond)
	l.Define("task", 50*time.Millisecond)
	for _, name := range []string{"entrance", "task", "task", "unknown"} {
		_, err := l.Dispense(name)
		require.NoError(t, err)
	}

	assert.Equal(t, 100*time.Millisecond+2*50*time.Millisecond+DefaultDuration, l.TotalOpenDuration())

	l.ZeroTotals()
	assert.Zero(t, l.TotalOpenDuration())
}

func TestDispense_OpenFailureClosesValve(t *testing.T) {
	l, v, _ := newLedger(t)
	v.openErr = errors.New("gpio busy")

	_, err := l.Dispense(DefaultCategory)

	require.Error(t, err)
	require.Len(t, v.events, 2)
	assert.False(t, v.events[1].open)
	assert.Equal(t, 0, l.Count(DefaultCategory))
}

func TestDispense_PanicClosesValve(t *testing.T) {
	clk := testutil.NewManualClock(start)
	v := &recordingValve{clk: clk}
	l := NewLedger(DefaultDuration, v, panickingClock{clk})

	assert.Panics(t, func() { _, _ = l.Dispense(DefaultCategory) })

	require.Len(t, v.events, 2)
	assert.False(t, v.events[1].open)
}

func TestSetCountAndString(t *testing.T) {
	l, _, _ := newLedger(t)
	l.Define("entrance", 100*time.Millisecond)
	l.Define("task", 50*time.Millisecond)

	require.NoError(t, l.SetCount("task", 4))
	assert.Error(t, l.SetCount("missing", 1))

	assert.Equal(t, "entrance:0\ttask:4\t", l.String())
}

func TestWithObserver(t *testing.T) {
	clk := testutil.NewManualClock(start)
	var seen []string
	l := NewLedger(DefaultDuration, &recordingValve{clk: clk}, clk,
		WithObserver(func(name string, _ time.Duration) { seen = append(seen, name) }))
	l.Define("task", time.Millisecond)

	_, _ = l.Dispense("task")
	_, _ = l.Dispense("nope")

	assert.Equal(t, []string{"task", DefaultCategory}, seen)
}
