package sim

import (
	"time"

	"github.com/roach88/headfix/internal/hw"
	"github.com/roach88/headfix/internal/testutil"
)

// Pins used by a Rig.
const (
	PresencePin hw.Pin = "presence"
	ContactPin  hw.Pin = "contact"
	ClampPin    hw.Pin = "clamp"
	LEDPin      hw.Pin = "led"
	RewardPin   hw.Pin = "reward"
)

// Visit describes one subject's stay, in offsets from the rig start.
type Visit struct {
	Tag      uint64
	Arrive   time.Duration
	Leave    time.Duration
	Contacts []Contact
	// BadTag makes every tag read during the visit fail.
	BadTag bool
}

// Contact is one head-plate contact, in offsets from the rig start.
type Contact struct {
	From time.Duration
	To   time.Duration
}

// Rig wires the simulated devices to one clock and one trace.
type Rig struct {
	Start    time.Time
	Clock    *testutil.ManualClock
	Trace    *Trace
	IO       *IO
	Tags     *Tags
	Camera   *Camera
	Notifier *Notifier
	Trigger  *Trigger
}

// NewRig creates an empty cage whose clock reads start.
func NewRig(start time.Time) *Rig {
	clk := testutil.NewManualClock(start)
	trace := &Trace{}
	return &Rig{
		Start:    start,
		Clock:    clk,
		Trace:    trace,
		IO:       NewIO(clk, trace),
		Tags:     NewTags(clk),
		Camera:   NewCamera(clk, trace),
		Notifier: NewNotifier(clk, trace),
		Trigger:  NewTrigger(clk, trace),
	}
}

// At converts an offset from the rig start to a time.
func (r *Rig) At(offset time.Duration) time.Time {
	return r.Start.Add(offset)
}

// AddVisit schedules v on the presence and contact inputs and the reader.
func (r *Rig) AddVisit(v Visit) {
	from, to := r.At(v.Arrive), r.At(v.Leave)
	r.IO.Drive(PresencePin, from, to)
	r.Tags.Place(v.Tag, from, to, v.BadTag)
	for _, c := range v.Contacts {
		r.IO.Drive(ContactPin, r.At(c.From), r.At(c.To))
	}
}
