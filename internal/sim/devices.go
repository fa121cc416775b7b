package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/headfix/internal/testutil"
)

// ErrNoTag is returned by Tags.ReadTag when no tag is in range.
var ErrNoTag = errors.New("sim: no tag in range")

// ErrUnreadable is returned for a placement made with a bad frame.
var ErrUnreadable = errors.New("sim: unreadable tag frame")

type placement struct {
	tag      uint64
	from, to time.Time
	bad      bool
}

// Tags plays back which tag is in range of the reader.
type Tags struct {
	mu     sync.Mutex
	clock  *testutil.ManualClock
	placed []placement
	clears int
}

// NewTags creates a reader with nothing in range.
func NewTags(clk *testutil.ManualClock) *Tags {
	return &Tags{clock: clk}
}

// Place puts tag in range over [from, to). bad makes reads fail.
func (t *Tags) Place(tag uint64, from, to time.Time, bad bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.placed = append(t.placed, placement{tag: tag, from: from, to: to, bad: bad})
}

func (t *Tags) ReadTag() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	for _, p := range t.placed {
		if !now.Before(p.from) && now.Before(p.to) {
			if p.bad {
				return 0, ErrUnreadable
			}
			return p.tag, nil
		}
	}
	return 0, ErrNoTag
}

func (t *Tags) ClearBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clears++
	return nil
}

// Clears reports how many times the buffer was cleared.
func (t *Tags) Clears() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clears
}

// Camera records start and stop requests.
type Camera struct {
	mu        sync.Mutex
	clock     *testutil.ManualClock
	trace     *Trace
	recording string
	startErr  error
	videos    []string
}

// NewCamera creates an idle camera.
func NewCamera(clk *testutil.ManualClock, trace *Trace) *Camera {
	return &Camera{clock: clk, trace: trace}
}

// FailStart makes StartRecording return err. nil clears it.
func (c *Camera) FailStart(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startErr = err
}

func (c *Camera) StartRecording(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	if c.recording != "" {
		return fmt.Errorf("sim: camera already recording %s", c.recording)
	}
	c.recording = path
	c.videos = append(c.videos, path)
	c.trace.add(Action{At: c.clock.Now(), Kind: KindCameraStart, Target: "camera", Value: path})
	return nil
}

func (c *Camera) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording == "" {
		return nil
	}
	c.trace.add(Action{At: c.clock.Now(), Kind: KindCameraStop, Target: "camera", Value: c.recording})
	c.recording = ""
	return nil
}

// Recording reports whether a recording is in progress.
func (c *Camera) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording != ""
}

// Videos lists every path recorded to.
func (c *Camera) Videos() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.videos...)
}

// Notice is one recorded notification.
type Notice struct {
	Tag    uint64
	Inside time.Duration
	Stuck  bool
}

// Notifier records notifications.
type Notifier struct {
	mu      sync.Mutex
	clock   *testutil.ManualClock
	trace   *Trace
	notices []Notice
}

func NewNotifier(clk *testutil.ManualClock, trace *Trace) *Notifier {
	return &Notifier{clock: clk, trace: trace}
}

func (n *Notifier) Notify(tag uint64, inside time.Duration, stuck bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, Notice{Tag: tag, Inside: inside, Stuck: stuck})
	n.trace.add(Action{At: n.clock.Now(), Kind: KindNotify, Target: fmt.Sprintf("%013d", tag), Value: fmt.Sprintf("stuck=%t", stuck)})
}

// Notices returns what was sent.
func (n *Notifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

// Trigger records sync messages.
type Trigger struct {
	clock *testutil.ManualClock
	trace *Trace
}

func NewTrigger(clk *testutil.ManualClock, trace *Trace) *Trigger {
	return &Trigger{clock: clk, trace: trace}
}

func (t *Trigger) Trigger(msg string) {
	t.trace.add(Action{At: t.clock.Now(), Kind: KindTrigger, Target: "udp", Value: msg})
}
