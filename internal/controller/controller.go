package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/headfix/internal/clock"
	"github.com/roach88/headfix/internal/eventlog"
	"github.com/roach88/headfix/internal/hw"
	"github.com/roach88/headfix/internal/metrics"
	"github.com/roach88/headfix/internal/reward"
	"github.com/roach88/headfix/internal/session"
	"github.com/roach88/headfix/internal/stimulus"
	"github.com/roach88/headfix/internal/subject"
)

// EntranceCategory and TaskCategory name the reward categories the
// controller and the built-in stimuli dispense.
const (
	EntranceCategory = "entrance"
	TaskCategory     = "task"
)

// TagReader decodes the tag of the subject in range.
type TagReader interface {
	ReadTag() (uint64, error)
	ClearBuffer() error
}

// Camera records a trial video.
type Camera interface {
	StartRecording(path string) error
	StopRecording() error
}

// Notifier alerts a person about a stuck subject. Implementations handle
// their own failures.
type Notifier interface {
	Notify(tag uint64, inside time.Duration, stuck bool)
}

// Trigger signals peer devices. Fire-and-forget.
type Trigger interface {
	Trigger(message string)
}

// DayOpener opens the storage for the day containing the current time.
type DayOpener interface {
	Open(ctx context.Context) (*session.Day, error)
}

// Random is a source of uniform draws in [0, 1).
type Random interface {
	Float64() float64
}

// Config holds the pins and timings of a cage.
type Config struct {
	Presence hw.Pin // tag-in-range
	Contact  hw.Pin // head plate

	PollTimeout        time.Duration
	SettleTime         time.Duration
	EntryRewardDelay   time.Duration
	MaxEntryRewards    int
	HeadFixProbability float64
	InChamberLimit     time.Duration
	Skedaddle          time.Duration
	CameraStartDelay   time.Duration
	VideoFormat        string

	Days session.Clock
}

// DefaultConfig returns the stock timings. Pins must still be set.
func DefaultConfig() Config {
	return Config{
		PollTimeout:        50 * time.Millisecond,
		SettleTime:         150 * time.Millisecond,
		EntryRewardDelay:   1 * time.Second,
		MaxEntryRewards:    1000,
		HeadFixProbability: 1,
		InChamberLimit:     10 * time.Minute,
		Skedaddle:          2 * time.Second,
		CameraStartDelay:   100 * time.Millisecond,
		VideoFormat:        "h264",
		Days:               session.Clock{StartHour: 7},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Presence == "" || c.Contact == "" {
		errs = append(errs, errors.New("presence and contact pins are required"))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("poll timeout %v must be positive", c.PollTimeout))
	}
	if c.SettleTime < 0 || c.EntryRewardDelay < 0 || c.Skedaddle < 0 || c.CameraStartDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.InChamberLimit <= 0 {
		errs = append(errs, fmt.Errorf("in-chamber limit %v must be positive", c.InChamberLimit))
	}
	if c.HeadFixProbability < 0 || c.HeadFixProbability > 1 {
		errs = append(errs, fmt.Errorf("head-fix probability %g out of [0,1]", c.HeadFixProbability))
	}
	if c.MaxEntryRewards < 0 {
		errs = append(errs, fmt.Errorf("max entry rewards %d must not be negative", c.MaxEntryRewards))
	}
	if c.VideoFormat == "" {
		errs = append(errs, errors.New("video format is required"))
	}
	errs = append(errs, c.Days.Validate())
	return errors.Join(errs...)
}

// Deps are the collaborators of a Controller. Notifier, Trigger, Metrics,
// Console and Logger are optional.
type Deps struct {
	IO        hw.DigitalIO
	Actuators *hw.Actuators
	Tags      TagReader
	Camera    Camera
	Stimulus  stimulus.Stimulus
	Ledger    *reward.Ledger
	Days      DayOpener
	Clock     clock.Clock
	Random    Random

	Notifier Notifier
	Trigger  Trigger
	Metrics  *metrics.Recorder
	Console  io.Writer
	Logger   *slog.Logger
}

// Controller is the single-writer cage state machine.
//
// INVARIANTS:
//   - Only the goroutine inside Run touches the day, registry and outputs.
//   - Counters are mutated only here, in response to logged events.
type Controller struct {
	cfg Config
	Deps

	day       *session.Day
	schedule  *session.Schedule
	state     State
	doHeadFix bool

	// peersRecording is set between the start and stop triggers.
	peersRecording bool
}

// New checks cfg and deps and configures the input pins.
func New(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}
	switch {
	case deps.IO == nil, deps.Actuators == nil, deps.Tags == nil, deps.Camera == nil,
		deps.Stimulus == nil, deps.Ledger == nil, deps.Days == nil, deps.Clock == nil, deps.Random == nil:
		return nil, errors.New("controller: missing required dependency")
	}
	if deps.Console == nil {
		deps.Console = io.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	for _, pin := range []hw.Pin{cfg.Presence, cfg.Contact} {
		if err := deps.IO.SetDirection(pin, hw.Input); err != nil {
			return nil, fmt.Errorf("configure input %s: %w", pin, err)
		}
	}
	return &Controller{cfg: cfg, Deps: deps}, nil
}

// State returns the current state. Only meaningful from Run's goroutine or
// after Run returns.
func (c *Controller) State() State { return c.state }

// Day returns the current (or, after Run, the last) day.
func (c *Controller) Day() *session.Day { return c.day }

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.Logger.Debug("state", "from", c.state.String(), "to", s.String())
	c.state = s
}

// Run opens the current day and polls for subjects until ctx is cancelled
// or a fatal storage error occurs. It returns ctx.Err() on cancellation.
// Before returning it notifies the stimulus, forces every output low and
// closes the day.
func (c *Controller) Run(ctx context.Context) (err error) {
	day, err := c.Days.Open(ctx)
	if err != nil {
		return fmt.Errorf("open day: %w", err)
	}
	c.day = day
	c.Stimulus.NextDay(day.Log)
	c.restoreTotals(day.Registry)
	c.schedule = session.NewSchedule(c.cfg.Days, c.Clock.Now())
	c.Metrics.SubjectsToday(day.Registry.Len())

	defer func() {
		c.setState(Stopped)
		c.Stimulus.Quitting()
		if offErr := c.Actuators.AllOff(); offErr != nil {
			err = errors.Join(err, fmt.Errorf("force outputs off: %w", offErr))
		}
		if closeErr := c.day.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close day: %w", closeErr))
		}
		c.Logger.Info("controller stopped")
	}()

	c.Logger.Info("waiting for a subject", "next_rollover", c.schedule.Next())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.setState(Idle)

		if c.schedule.Due(c.Clock.Now()) {
			if err := c.rollover(ctx); err != nil {
				return fmt.Errorf("day rollover: %w", err)
			}
		}

		if !c.waitFor(c.cfg.Presence, hw.Rising, hw.High) {
			continue
		}
		tag, err := c.Tags.ReadTag()
		if err != nil {
			c.Logger.Debug("ignoring entry with unreadable tag", "error", err)
			continue
		}
		if err := c.visit(ctx, tag); err != nil {
			return err
		}
		c.Logger.Info("waiting for a subject")
	}
}

// visit handles one subject from entry to exit.
func (c *Controller) visit(ctx context.Context, tag uint64) error {
	entered := c.Clock.Now()
	c.setState(Entered)

	s, ok := c.day.Registry.Lookup(tag)
	if !ok {
		var err error
		if s, err = c.day.AddSubject(tag); err != nil {
			return fmt.Errorf("register subject: %w", err)
		}
		c.Metrics.SubjectsToday(c.day.Registry.Len())
	}
	if err := c.day.Log.Write(tag, eventlog.Entry); err != nil {
		return err
	}
	s.AddEntry()
	c.Metrics.Entry()

	if s.Counts().EntranceRewards < c.cfg.MaxEntryRewards {
		c.setState(ArbitratingEntranceReward)
		give := true
		c.doHeadFix = c.drawHeadFix()
		deadline := entered.Add(c.cfg.EntryRewardDelay)
		for c.level(c.cfg.Presence) && c.Clock.Now().Before(deadline) {
			// Contact is polled before the deadline is re-checked, so a
			// contact inside the window always countermands the reward.
			if c.waitFor(c.cfg.Contact, hw.Rising, hw.High) {
				c.runTrial(ctx, s)
				give = false
				break
			}
		}
		if give && c.level(c.cfg.Presence) {
			if err := c.giveEntranceReward(s); err != nil {
				return err
			}
		}
	}

	c.doHeadFix = c.drawHeadFix()
	c.setState(AwaitingContact)
	limit := entered.Add(c.cfg.InChamberLimit)
	for c.level(c.cfg.Presence) && c.Clock.Now().Before(limit) {
		if c.waitFor(c.cfg.Contact, hw.Rising, hw.High) {
			c.runTrial(ctx, s)
			c.doHeadFix = c.drawHeadFix()
			c.setState(AwaitingContact)
		}
	}

	c.setState(AwaitingExit)
	if c.level(c.cfg.Presence) && !c.Clock.Now().Before(limit) {
		if !c.handleStuck(ctx, tag, entered) {
			c.Logger.Warn("stopping with subject still in chamber", "tag", tag, "inside", c.Clock.Now().Sub(entered))
			if err := c.day.SaveSubject(s); err != nil {
				return fmt.Errorf("save subject: %w", err)
			}
			return nil
		}
	}

	if err := c.Tags.ClearBuffer(); err != nil {
		c.Logger.Warn("failed to clear tag reader", "error", err)
	}
	if err := c.day.Log.Write(tag, eventlog.Exit); err != nil {
		return err
	}
	if err := c.day.SaveSubject(s); err != nil {
		return fmt.Errorf("save subject: %w", err)
	}
	c.Metrics.Visit(c.Clock.Now().Sub(entered))
	return nil
}

func (c *Controller) giveEntranceReward(s *subject.Subject) error {
	if _, err := c.Ledger.Dispense(EntranceCategory); err != nil {
		c.Logger.Error("entrance reward failed", "tag", s.Tag(), "error", err)
		return nil
	}
	s.AddEntranceReward()
	c.Metrics.EntranceReward()
	return c.day.Log.Write(s.Tag(), eventlog.EntryReward)
}

// handleStuck alerts, then waits, without a time limit, for the subject to
// leave. It reports whether the subject left; only cancellation ends the
// wait early, and then no departure is announced.
func (c *Controller) handleStuck(ctx context.Context, tag uint64, entered time.Time) bool {
	if err := c.Actuators.SetClamp(false); err != nil {
		c.Logger.Error("failed to release clamp for stuck subject", "tag", tag, "error", err)
	}
	c.Metrics.Stuck()
	inside := c.Clock.Now().Sub(entered)
	c.Logger.Warn("subject stuck in chamber", "tag", tag, "inside", inside)
	if c.Notifier != nil {
		c.Notifier.Notify(tag, inside, true)
	}

	left := false
	for !left && ctx.Err() == nil {
		left = c.waitFor(c.cfg.Presence, hw.Falling, hw.Low)
	}
	if !left {
		return false
	}

	inside = c.Clock.Now().Sub(entered)
	c.Logger.Info("stuck subject left chamber", "tag", tag, "inside", inside)
	if c.Notifier != nil {
		c.Notifier.Notify(tag, inside, false)
	}
	return true
}

// rollover closes the current day and opens the next one.
func (c *Controller) rollover(ctx context.Context) error {
	now := c.Clock.Now()
	c.Logger.Info("day rollover", "from", c.day.Date, "subjects", c.day.Registry.Len(), "valve_open", c.Ledger.TotalOpenDuration())
	for _, line := range c.day.Registry.Summary() {
		fmt.Fprintln(c.Console, line)
	}
	fmt.Fprintf(c.Console, "rewards %s total open %s\n", c.Ledger.String(), c.Ledger.TotalOpenDuration())

	if err := c.day.Close(); err != nil {
		return err
	}
	day, err := c.Days.Open(ctx)
	if err != nil {
		return err
	}
	c.day = day
	c.Stimulus.NextDay(day.Log)
	c.Ledger.ZeroTotals()
	c.restoreTotals(day.Registry)
	c.schedule.Advance(now)
	c.Metrics.Rollover()
	c.Metrics.SubjectsToday(day.Registry.Len())
	return nil
}

// restoreTotals carries the rewards already recorded in a reopened day's
// statistics over into the ledger.
func (c *Controller) restoreTotals(reg *subject.Registry) {
	var entrance, task int
	for _, s := range reg.Subjects() {
		n := s.Counts()
		entrance += n.EntranceRewards
		task += n.HeadFixRewards
	}
	for _, cat := range []struct {
		name  string
		count int
	}{{EntranceCategory, entrance}, {TaskCategory, task}} {
		if err := c.Ledger.SetCount(cat.name, cat.count); err != nil {
			c.Logger.Debug("reward total not restored", "category", cat.name, "error", err)
		}
	}
}

func (c *Controller) drawHeadFix() bool {
	return c.cfg.HeadFixProbability > c.Random.Float64()
}

// waitFor waits up to one poll for edge on pin, then reports whether pin
// reads want. Driver errors count as "not yet" and still consume one poll.
func (c *Controller) waitFor(pin hw.Pin, edge hw.Edge, want hw.Level) bool {
	if _, err := c.IO.WaitForEdge(pin, edge, c.cfg.PollTimeout); err != nil {
		c.Logger.Warn("edge wait failed", "pin", string(pin), "error", err)
		c.Clock.Sleep(c.cfg.PollTimeout)
	}
	return c.readLevel(pin) == want
}

func (c *Controller) level(pin hw.Pin) bool {
	return c.readLevel(pin) == hw.High
}

func (c *Controller) readLevel(pin hw.Pin) hw.Level {
	l, err := c.IO.Read(pin)
	if err != nil {
		c.Logger.Warn("read failed", "pin", string(pin), "error", err)
		return hw.Low
	}
	return l
}
