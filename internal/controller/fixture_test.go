package controller

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/headfix/internal/eventlog"
	"github.com/roach88/headfix/internal/hw"
	"github.com/roach88/headfix/internal/metrics"
	"github.com/roach88/headfix/internal/reward"
	"github.com/roach88/headfix/internal/session"
	"github.com/roach88/headfix/internal/sim"
	"github.com/roach88/headfix/internal/stimulus"
	"github.com/roach88/headfix/internal/subject"
	"github.com/roach88/headfix/internal/testutil"
)

const testTag uint64 = 1234567890123

var morning = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

type fixture struct {
	rig     *sim.Rig
	cfg     Config
	deps    Deps
	opener  *session.Opener
	ledger  *reward.Ledger
	draws   *testutil.FixedDraws
	metrics *metrics.Recorder
	console *bytes.Buffer
}

// newFixture builds a controller on a simulated cage. The stimulus gives
// two task rewards half a second apart.
func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	rig := sim.NewRig(start)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	act, err := hw.NewActuators(rig.IO, sim.ClampPin, sim.LEDPin, sim.RewardPin, logger)
	require.NoError(t, err)

	rec := metrics.New()
	ledger := reward.NewLedger(reward.DefaultDuration, act, rig.Clock,
		reward.WithObserver(rec.Reward), reward.WithLogger(logger))
	ledger.Define(EntranceCategory, 100*time.Millisecond)
	ledger.Define(TaskCategory, 50*time.Millisecond)

	stim := newTestStimulus(t, ledger, rig.Clock, logger)

	cfg := DefaultConfig()
	cfg.Presence = sim.PresencePin
	cfg.Contact = sim.ContactPin
	cfg.Days = session.Clock{StartHour: 7, Location: time.UTC}

	opener := &session.Opener{
		Layout: session.Layout{DataPath: t.TempDir(), CageID: "cage1"},
		Clock:  rig.Clock,
		Days:   cfg.Days,
		Logger: logger,
	}
	draws := testutil.NewFixedDraws(0)
	console := &bytes.Buffer{}

	return &fixture{
		rig:    rig,
		cfg:    cfg,
		opener: opener,
		ledger: ledger,
		draws:  draws,
		deps: Deps{
			IO:        rig.IO,
			Actuators: act,
			Tags:      rig.Tags,
			Camera:    rig.Camera,
			Stimulus:  stim,
			Ledger:    ledger,
			Days:      opener,
			Clock:     rig.Clock,
			Random:    draws,
			Notifier:  rig.Notifier,
			Metrics:   rec,
			Console:   console,
			Logger:    logger,
		},
		metrics: rec,
		console: console,
	}
}

func newTestStimulus(t *testing.T, ledger *reward.Ledger, clk *testutil.ManualClock, logger *slog.Logger) stimulus.Stimulus {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("count: 2\ninterval: 0.5\n"), &node))
	st, err := stimulus.New("rewards", node.Content[0], stimulus.Deps{Ledger: ledger, Clock: clk, Logger: logger})
	require.NoError(t, err)
	return st
}

// run drives the controller until the virtual clock reaches stop.
func (f *fixture) run(t *testing.T, stop time.Duration) *Controller {
	t.Helper()
	c, err := New(f.cfg, f.deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.rig.IO.StopAt(f.rig.At(stop), cancel)

	err = c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	return c
}

// labels returns the labels logged for tag on date, in order.
func (f *fixture) labels(t *testing.T, date string, tag uint64) []string {
	t.Helper()
	var out []string
	for _, ev := range f.events(t, date) {
		if ev.Tag == tag {
			out = append(out, ev.Label)
		}
	}
	return out
}

func (f *fixture) events(t *testing.T, date string) []eventlog.Event {
	t.Helper()
	data, err := os.ReadFile(f.opener.Layout.LogPath(date))
	require.NoError(t, err)
	var out []eventlog.Event
	for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
		ev, err := eventlog.ParseLine(line)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func (f *fixture) stats(t *testing.T, date string) *subject.Registry {
	t.Helper()
	file, err := os.Open(f.opener.Layout.StatsPath(date))
	require.NoError(t, err)
	defer file.Close()
	reg, err := subject.ReadStats(file)
	require.NoError(t, err)
	return reg
}

func (f *fixture) counts(t *testing.T, date string, tag uint64) subject.Counts {
	t.Helper()
	s, ok := f.stats(t, date).Lookup(tag)
	require.True(t, ok, "subject %013d not in stats", tag)
	return s.Counts()
}

// requireTrials compares the trials_total series with lines, which must be
// sorted by outcome.
func (f *fixture) requireTrials(t *testing.T, lines ...string) {
	t.Helper()
	expected := "# HELP headfix_trials_total Contact-triggered trials by outcome.\n" +
		"# TYPE headfix_trials_total counter\n" +
		strings.Join(lines, "\n") + "\n"
	require.NoError(t, promtestutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "headfix_trials_total"))
}

// panicStimulus blows up in Run.
type panicStimulus struct {
	stimulus.Stimulus
}

func (panicStimulus) Run(context.Context) (stimulus.Outcome, error) {
	panic("stimulus exploded")
}
