// Package hw defines the digital I/O contract the cage controller consumes
// and the actuator safety layer built on top of it.
//
// Pins are opaque identifiers taken verbatim from the cage configuration; the
// controller never assumes a numbering scheme. A periph.io-backed driver is
// provided for Raspberry Pi class hosts.
package hw

import (
	"fmt"
	"time"
)

// Pin identifies one digital line, e.g. "GPIO17" or "17".
type Pin string

// Level is the logic level of a pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Direction configures a pin as input or output.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "in"
	case Output:
		return "out"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Edge selects which transition WaitForEdge waits for.
type Edge int

const (
	Rising Edge = iota
	Falling
	BothEdges
)

func (e Edge) String() string {
	switch e {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	case BothEdges:
		return "both"
	default:
		return fmt.Sprintf("Edge(%d)", int(e))
	}
}

// DigitalIO is the hardware capability the controller drives.
//
// WaitForEdge blocks until the requested transition occurs on pin or timeout
// elapses, whichever is first, and reports whether the edge fired. Callers
// always re-read the level afterwards; a fired edge is a hint, not a state.
type DigitalIO interface {
	SetDirection(pin Pin, dir Direction) error
	Write(pin Pin, level Level) error
	Read(pin Pin) (Level, error)
	WaitForEdge(pin Pin, edge Edge, timeout time.Duration) (bool, error)
}
