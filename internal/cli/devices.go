package cli

import (
	"fmt"
	"log/slog"

	"github.com/roach88/headfix/internal/camera"
	"github.com/roach88/headfix/internal/clock"
	"github.com/roach88/headfix/internal/config"
	"github.com/roach88/headfix/internal/controller"
	"github.com/roach88/headfix/internal/hw"
	"github.com/roach88/headfix/internal/tagreader"
)

// GPIO is a DigitalIO that must be released when the command ends.
type GPIO interface {
	hw.DigitalIO
	Close() error
}

// TagSource is a tag reader that must be released when the command ends.
type TagSource interface {
	controller.TagReader
	Close() error
}

// Devices opens the hardware of a cage. Commands go through the package
// level devices so tests can substitute a simulated cage.
type Devices struct {
	GPIO   func() (GPIO, error)
	Tags   func(cage *config.Cage, logger *slog.Logger) (TagSource, error)
	Camera func(p camera.Params, logger *slog.Logger) (controller.Camera, error)
	Clock  clock.Clock
}

// HostDevices drives the real rig: periph.io GPIO, a serial RFID reader and
// the capture command.
func HostDevices() Devices {
	return Devices{
		GPIO: func() (GPIO, error) {
			return hw.OpenPeriph()
		},
		Tags: func(cage *config.Cage, logger *slog.Logger) (TagSource, error) {
			return tagreader.OpenSerial(cage.SerialPort, cage.TagChecksum, logger)
		},
		Camera: func(p camera.Params, logger *slog.Logger) (controller.Camera, error) {
			return camera.NewRecorder(p, camera.WithLogger(logger))
		},
		Clock: clock.System{},
	}
}

var devices = HostDevices()

// actuators opens the GPIO and claims the cage's outputs, driving them low.
func actuators(cage *config.Cage, logger *slog.Logger) (GPIO, *hw.Actuators, error) {
	gpio, err := devices.GPIO()
	if err != nil {
		return nil, nil, hardwareError("failed to open gpio", err)
	}
	act, err := hw.NewActuators(gpio, cage.PistonsPin.Pin(), cage.LEDPin.Pin(), cage.RewardPin.Pin(), logger)
	if err != nil {
		gpio.Close()
		return nil, nil, hardwareError("failed to claim outputs", err)
	}
	return gpio, act, nil
}

func loadCage(path string) (*config.Cage, error) {
	cage, err := config.LoadCage(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load cage settings", err)
	}
	return cage, nil
}

// loadExperiment returns the stock protocol when path is empty.
func loadExperiment(path string) (*config.Experiment, error) {
	if path == "" {
		exp := config.DefaultExperiment()
		return &exp, nil
	}
	exp, err := config.LoadExperiment(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load experiment settings", err)
	}
	return exp, nil
}

func closeLogged(logger *slog.Logger, what string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logger.Warn(fmt.Sprintf("close %s", what), "error", err)
	}
}
