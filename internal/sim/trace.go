package sim

import (
	"fmt"
	"sync"
	"time"
)

// Kind classifies a recorded Action.
type Kind string

const (
	KindWrite       Kind = "write"
	KindCameraStart Kind = "camera_start"
	KindCameraStop  Kind = "camera_stop"
	KindTrigger     Kind = "trigger"
	KindNotify      Kind = "notify"
)

// Action is one externally visible effect of the controller.
type Action struct {
	At     time.Time
	Kind   Kind
	Target string
	Value  string
}

func (a Action) String() string {
	return fmt.Sprintf("%s %s %s %s", a.At.UTC().Format("15:04:05.000"), a.Kind, a.Target, a.Value)
}

// Trace is the ordered record of every Action in a rig.
type Trace struct {
	mu      sync.Mutex
	actions []Action
}

func (t *Trace) add(a Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions = append(t.actions, a)
}

// Actions returns a copy of everything recorded so far.
func (t *Trace) Actions() []Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Action(nil), t.actions...)
}

// Filter returns the recorded actions of the given kinds, in order.
func (t *Trace) Filter(kinds ...Kind) []Action {
	var out []Action
	for _, a := range t.Actions() {
		for _, k := range kinds {
			if a.Kind == k {
				out = append(out, a)
				break
			}
		}
	}
	return out
}
