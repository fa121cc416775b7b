package hw

import (
	"errors"
	"fmt"
	"log/slog"
)

// PanicError wraps a value recovered by Guard.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Actuators owns the three output lines of a cage: the head-fix clamp
// (pistons), the brain illumination LED and the water reward solenoid.
//
// INVARIANT: every exit from Guard with an error, and every call to AllOff,
// leaves all three lines driven low, even if one of the writes fails.
type Actuators struct {
	io     DigitalIO
	clamp  Pin
	led    Pin
	reward Pin
	logger *slog.Logger
}

// NewActuators configures clamp, led and reward as outputs and drives them
// low. The returned Actuators does not own io beyond its own lifetime.
func NewActuators(io DigitalIO, clamp, led, reward Pin, logger *slog.Logger) (*Actuators, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Actuators{io: io, clamp: clamp, led: led, reward: reward, logger: logger}
	for _, pin := range a.pins() {
		if err := io.SetDirection(pin, Output); err != nil {
			return nil, fmt.Errorf("configure output %s: %w", pin, err)
		}
	}
	if err := a.AllOff(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Actuators) pins() []Pin {
	return []Pin{a.clamp, a.led, a.reward}
}

// SetClamp energizes or releases the head-fix pistons.
func (a *Actuators) SetClamp(on bool) error {
	return a.set(a.clamp, "clamp", on)
}

// SetLED switches the brain illumination LED.
func (a *Actuators) SetLED(on bool) error {
	return a.set(a.led, "led", on)
}

// SetValve opens or closes the reward solenoid.
// Actuators satisfies reward.Valve through this method.
func (a *Actuators) SetValve(open bool) error {
	return a.set(a.reward, "valve", open)
}

func (a *Actuators) set(pin Pin, name string, on bool) error {
	if err := a.io.Write(pin, Level(on)); err != nil {
		return fmt.Errorf("set %s %s: %w", name, Level(on), err)
	}
	a.logger.Debug("actuator", "name", name, "pin", string(pin), "level", Level(on).String())
	return nil
}

// AllOff drives every output low. All three writes are attempted even if
// an earlier one fails; the failures are joined.
func (a *Actuators) AllOff() error {
	var errs []error
	for _, pin := range a.pins() {
		if err := a.io.Write(pin, Low); err != nil {
			errs = append(errs, fmt.Errorf("force %s low: %w", pin, err))
		}
	}
	return errors.Join(errs...)
}

// Guard runs fn and forces every output low if fn returns an error or
// panics. A panic is recovered and returned as *PanicError so the caller's
// loop survives it.
func (a *Actuators) Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
		if err != nil {
			if offErr := a.AllOff(); offErr != nil {
				a.logger.Error("failed to force actuators off", "error", offErr)
			}
		}
	}()
	return fn()
}
