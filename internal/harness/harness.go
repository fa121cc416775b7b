package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/headfix/internal/archive"
	"github.com/roach88/headfix/internal/config"
	"github.com/roach88/headfix/internal/controller"
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

const defaultCage = "cage1"

// Harness holds one scenario run.
type Harness struct {
	scenario *Scenario
	dir      string
	rig      *sim.Rig
	archive  *archive.Archive
	opener   *session.Opener
	logger   *slog.Logger

	mu     sync.Mutex
	events []eventlog.Event
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temporary data folder and archive, removed
// before Run returns.
//
// Execution flow:
// 1. Build the simulated cage and schedule the visits
// 2. Build the controller from the experiment settings
// 3. Run it until the stop offset
// 4. Collect events, actions and statistics
// 5. Evaluate assertions against the result and the archive
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "headfix-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create data folder: %w", err)
	}
	defer os.RemoveAll(dir)

	arc, err := archive.Open(filepath.Join(dir, "archive.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	defer arc.Close()

	h := &Harness{
		scenario: scenario,
		dir:      dir,
		rig:      sim.NewRig(scenario.Start),
		archive:  arc,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, v := range scenario.Visits {
		h.rig.AddVisit(sim.Visit{
			Tag:      v.Tag,
			Arrive:   v.Arrive,
			Leave:    v.Leave,
			Contacts: toSimContacts(v.Contacts),
			BadTag:   v.BadTag,
		})
	}
	if scenario.CameraFails {
		h.rig.Camera.FailStart(errors.New("simulated camera failure"))
	}

	ctrl, err := h.build()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.rig.IO.StopAt(h.rig.At(scenario.Stop), cancel)
	if err := ctrl.Run(ctx); !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("controller stopped early: %w", err)
	}

	result, err := h.collect()
	if err != nil {
		return nil, err
	}

	actx := &AssertionContext{Archive: arc, Ctx: context.Background()}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func toSimContacts(cs []Contact) []sim.Contact {
	out := make([]sim.Contact, len(cs))
	for i, c := range cs {
		out[i] = sim.Contact{From: c.From, To: c.To}
	}
	return out
}

// experiment decodes the scenario's settings block.
func (h *Harness) experiment() (*config.Experiment, error) {
	var data []byte
	if h.scenario.Experiment.Kind != 0 {
		var err error
		if data, err = yaml.Marshal(&h.scenario.Experiment); err != nil {
			return nil, fmt.Errorf("experiment: %w", err)
		}
	}
	exp, err := config.ParseExperiment(h.scenario.Name, data)
	if err != nil {
		return nil, err
	}
	if exp.Timezone == "" {
		exp.Timezone = "UTC"
	}
	return exp, nil
}

func (h *Harness) build() (*controller.Controller, error) {
	exp, err := h.experiment()
	if err != nil {
		return nil, err
	}
	cageID := h.scenario.Cage
	if cageID == "" {
		cageID = defaultCage
	}

	act, err := hw.NewActuators(h.rig.IO, sim.ClampPin, sim.LEDPin, sim.RewardPin, h.logger)
	if err != nil {
		return nil, err
	}
	rec := metrics.New()
	ledger := reward.NewLedger(exp.DefaultReward(), act, h.rig.Clock,
		reward.WithObserver(rec.Reward), reward.WithLogger(h.logger))
	exp.DefineRewards(ledger)

	stim, err := stimulus.New(exp.Stimulus.Name, exp.StimulusConfig(), stimulus.Deps{
		Ledger: ledger,
		Clock:  h.rig.Clock,
		Logger: h.logger,
	})
	if err != nil {
		return nil, err
	}

	cage := &config.Cage{
		TIRPin:     config.PinName(sim.PresencePin),
		ContactPin: config.PinName(sim.ContactPin),
	}
	cfg := exp.ControllerConfig(cage)

	h.opener = &session.Opener{
		Layout:  session.Layout{DataPath: h.dir, CageID: cageID},
		Clock:   h.rig.Clock,
		Days:    cfg.Days,
		Archive: h.archive,
		Sinks:   []eventlog.Sink{eventlog.SinkFunc(h.record)},
		Logger:  h.logger,
	}

	deps := controller.Deps{
		IO:        h.rig.IO,
		Actuators: act,
		Tags:      h.rig.Tags,
		Camera:    h.rig.Camera,
		Stimulus:  stim,
		Ledger:    ledger,
		Days:      h.opener,
		Clock:     h.rig.Clock,
		Random:    testutil.NewFixedDraws(h.scenario.Draws...),
		Notifier:  h.rig.Notifier,
		Metrics:   rec,
		Logger:    h.logger,
	}
	if h.scenario.Trigger {
		deps.Trigger = h.rig.Trigger
	}
	return controller.New(cfg, deps)
}

func (h *Harness) record(ev eventlog.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

// collect gathers the observable outcome of the run.
func (h *Harness) collect() (*Result, error) {
	result := NewResult()
	start := h.scenario.Start

	h.mu.Lock()
	for _, ev := range h.events {
		result.Events = append(result.Events, TraceEvent{Offset: ev.At.Sub(start), Tag: ev.Tag, Label: ev.Label})
	}
	h.mu.Unlock()

	for _, a := range h.rig.Trace.Actions() {
		value := a.Value
		if a.Kind == sim.KindCameraStart || a.Kind == sim.KindCameraStop {
			if rel, err := filepath.Rel(h.dir, value); err == nil {
				value = filepath.ToSlash(rel)
			}
		}
		result.Actions = append(result.Actions, TraceAction{
			Offset: a.At.Sub(start),
			Kind:   string(a.Kind),
			Target: a.Target,
			Value:  value,
		})
	}

	result.OutputsLow = true
	for _, pin := range []hw.Pin{sim.ClampPin, sim.LEDPin, sim.RewardPin} {
		if h.rig.IO.Output(pin) != hw.Low {
			result.OutputsLow = false
		}
	}

	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list days: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			result.Dates = append(result.Dates, e.Name())
		}
	}
	sort.Strings(result.Dates)
	for _, date := range result.Dates {
		counters, err := h.readCounters(date)
		if err != nil {
			return nil, err
		}
		result.Counters = append(result.Counters, counters...)
	}
	return result, nil
}

func (h *Harness) readCounters(date string) ([]Counter, error) {
	f, err := os.Open(h.opener.Layout.StatsPath(date))
	if err != nil {
		return nil, fmt.Errorf("failed to open statistics for %s: %w", date, err)
	}
	defer f.Close()
	reg, err := subject.ReadStats(f)
	if err != nil {
		return nil, fmt.Errorf("statistics for %s: %w", date, err)
	}
	var out []Counter
	for _, s := range reg.Subjects() {
		out = append(out, Counter{Date: date, Tag: s.Tag(), Counts: s.Counts()})
	}
	return out, nil
}
