package hw

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Periph is a DigitalIO backed by periph.io.
//
// Pin names are resolved with gpioreg.ByName, which accepts both
// "GPIO17" style names and bare BCM numbers such as "17".
//
// periph arms edge detection as part of configuring an input, so the edge
// last armed on each pin is remembered and inputs are re-armed only when a
// different edge is requested.
type Periph struct {
	pins  map[Pin]gpio.PinIO
	edges map[Pin]gpio.Edge
}

// OpenPeriph initializes the host drivers. It must be called once per
// process before any pin is used.
func OpenPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize gpio host: %w", err)
	}
	return &Periph{
		pins:  make(map[Pin]gpio.PinIO),
		edges: make(map[Pin]gpio.Edge),
	}, nil
}

func (p *Periph) lookup(pin Pin) (gpio.PinIO, error) {
	if gp, ok := p.pins[pin]; ok {
		return gp, nil
	}
	gp := gpioreg.ByName(string(pin))
	if gp == nil {
		return nil, fmt.Errorf("gpio pin %q not found", pin)
	}
	p.pins[pin] = gp
	return gp, nil
}

// SetDirection configures pin as an input without edge detection, or as
// an output driven low.
func (p *Periph) SetDirection(pin Pin, dir Direction) error {
	gp, err := p.lookup(pin)
	if err != nil {
		return err
	}
	switch dir {
	case Input:
		if err := gp.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return fmt.Errorf("configure %s as input: %w", pin, err)
		}
		p.edges[pin] = gpio.NoEdge
	case Output:
		if err := gp.Out(gpio.Low); err != nil {
			return fmt.Errorf("configure %s as output: %w", pin, err)
		}
		delete(p.edges, pin)
	default:
		return fmt.Errorf("unknown direction %v", dir)
	}
	return nil
}

// Write drives an output pin.
func (p *Periph) Write(pin Pin, level Level) error {
	gp, err := p.lookup(pin)
	if err != nil {
		return err
	}
	return gp.Out(gpio.Level(level))
}

// Read samples a pin.
func (p *Periph) Read(pin Pin) (Level, error) {
	gp, err := p.lookup(pin)
	if err != nil {
		return Low, err
	}
	return Level(gp.Read()), nil
}

// WaitForEdge arms edge detection for edge if needed and waits up to timeout.
func (p *Periph) WaitForEdge(pin Pin, edge Edge, timeout time.Duration) (bool, error) {
	gp, err := p.lookup(pin)
	if err != nil {
		return false, err
	}
	want := periphEdge(edge)
	if armed, ok := p.edges[pin]; !ok || armed != want {
		if err := gp.In(gpio.PullNoChange, want); err != nil {
			return false, fmt.Errorf("arm %s edge on %s: %w", edge, pin, err)
		}
		p.edges[pin] = want
	}
	return gp.WaitForEdge(timeout), nil
}

// Close halts every pin that was touched.
func (p *Periph) Close() error {
	for pin, gp := range p.pins {
		if err := gp.Halt(); err != nil {
			return fmt.Errorf("halt %s: %w", pin, err)
		}
	}
	return nil
}

func periphEdge(e Edge) gpio.Edge {
	switch e {
	case Rising:
		return gpio.RisingEdge
	case Falling:
		return gpio.FallingEdge
	default:
		return gpio.BothEdges
	}
}
