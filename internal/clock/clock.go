// Package clock abstracts wall time for the cage controller.
//
// Every component that waits or timestamps (the controller's polling loop,
// the reward solenoid hold, the event log) reads time through a Clock so that
// the whole trial sequence can run against a manual clock in tests and in the
// scenario harness.
package clock

import "time"

// Clock reports the current time and blocks the calling goroutine.
//
// Sleep is the only blocking primitive the controller uses outside of
// hardware edge waits. Implementations used in tests advance virtual time
// instead of blocking.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// System is the Clock backed by the operating system.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (System) Sleep(d time.Duration) { time.Sleep(d) }
