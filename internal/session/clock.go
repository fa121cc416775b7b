// Package session scopes cage data to days.
//
// A day starts at a configured local hour and lasts 24 hours. Each day has
// its own folder holding the event log, the statistics file and the videos,
// and its own subject registry.
package session

import (
	"fmt"
	"time"
)

// Clock computes day boundaries.
type Clock struct {
	StartHour int
	Location  *time.Location
}

// Validate reports whether StartHour is a valid hour of day.
func (c Clock) Validate() error {
	if c.StartHour < 0 || c.StartHour > 23 {
		return fmt.Errorf("day start hour %d out of range 0-23", c.StartHour)
	}
	return nil
}

// NextRollover returns the first StartHour boundary strictly after now.
//
// The UTC offset is sampled once, at now, and used for the whole
// computation. A DST change between now and the boundary therefore shifts
// the boundary by the change rather than re-deriving the local hour.
func (c Clock) NextRollover(now time.Time) time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	name, offset := now.In(loc).Zone()
	fixed := time.FixedZone(name, offset)
	local := now.In(fixed)
	next := time.Date(local.Year(), local.Month(), local.Day(), c.StartHour, 0, 0, 0, fixed)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// DayStart returns the boundary that began the day containing now.
func (c Clock) DayStart(now time.Time) time.Time {
	next := c.NextRollover(now)
	return next.Add(-24 * time.Hour).In(next.Location())
}

// DateString returns the YYYYMMDD name of the day containing now, used for
// folder and file names. A day is named after the date it started on, so
// with a 07:00 start the small hours still belong to the previous date.
func (c Clock) DateString(now time.Time) string {
	return c.DayStart(now).Format("20060102")
}

// Schedule tracks the pending rollover boundary.
type Schedule struct {
	next time.Time
}

// NewSchedule returns a schedule whose first boundary follows now.
func NewSchedule(c Clock, now time.Time) *Schedule {
	return &Schedule{next: c.NextRollover(now)}
}

// Next returns the pending boundary.
func (s *Schedule) Next() time.Time { return s.next }

// Due reports whether now is past the pending boundary.
func (s *Schedule) Due(now time.Time) bool {
	return now.After(s.next)
}

// Advance moves the boundary forward by whole days until it follows now.
func (s *Schedule) Advance(now time.Time) {
	for !s.next.After(now) {
		s.next = s.next.Add(24 * time.Hour)
	}
}
