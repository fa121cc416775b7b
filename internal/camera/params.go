// Package camera records trial videos by running an external capture
// program, libcamera-vid by default, once per trial.
package camera

import (
	"errors"
	"fmt"
	"strconv"
)

// GainMode selects which exposure controls the camera computes itself.
type GainMode struct {
	AutoWhiteBalance bool
	AutoGain         bool
}

func (g GainMode) String() string {
	s := "gain from ISO"
	if g.AutoGain {
		s = "gain from current illumination"
	}
	if g.AutoWhiteBalance {
		return s + " with white balancing"
	}
	return s + " with no white balancing"
}

// Window is a preview rectangle: left, top, right, bottom.
type Window [4]int

// Params are the capture settings.
type Params struct {
	Command      string
	Width        int
	Height       int
	Framerate    float64
	ISO          int // 0 lets the camera set gain automatically
	ShutterSpeed int // microseconds
	Format       string
	Quality      int
	Preview      Window
	WhiteBalance bool
}

// DefaultParams returns the stock settings.
func DefaultParams() Params {
	return Params{
		Command:      "libcamera-vid",
		Width:        640,
		Height:       480,
		Framerate:    30,
		ISO:          0,
		ShutterSpeed: 30000,
		Format:       "h264",
		Quality:      20,
		Preview:      Window{0, 0, 640, 480},
	}
}

// Gain derives the gain mode from the settings.
func (p Params) Gain() GainMode {
	return GainMode{AutoWhiteBalance: p.WhiteBalance, AutoGain: p.ISO == 0}
}

// Validate checks the settings for values the capture program rejects.
func (p Params) Validate() error {
	var errs []error
	if p.Command == "" {
		errs = append(errs, errors.New("capture command is empty"))
	}
	if p.Width <= 0 || p.Height <= 0 {
		errs = append(errs, fmt.Errorf("resolution %dx%d must be positive", p.Width, p.Height))
	}
	if p.Framerate <= 0 {
		errs = append(errs, fmt.Errorf("framerate %g must be positive", p.Framerate))
	}
	if p.ISO < 0 {
		errs = append(errs, fmt.Errorf("iso %d must not be negative", p.ISO))
	}
	if p.ShutterSpeed <= 0 {
		errs = append(errs, fmt.Errorf("shutter speed %d must be positive", p.ShutterSpeed))
	}
	if p.Format == "" {
		errs = append(errs, errors.New("video format is empty"))
	}
	return errors.Join(errs...)
}

// Args returns the capture command line for recording to path.
func (p Params) Args(path string) []string {
	args := []string{
		"--timeout", "0",
		"--width", strconv.Itoa(p.Width),
		"--height", strconv.Itoa(p.Height),
		"--framerate", strconv.FormatFloat(p.Framerate, 'f', -1, 64),
		"--shutter", strconv.Itoa(p.ShutterSpeed),
		"--codec", p.Format,
	}
	args = append(args, "--preview", fmt.Sprintf("%d,%d,%d,%d",
		p.Preview[0], p.Preview[1], p.Preview[2]-p.Preview[0], p.Preview[3]-p.Preview[1]))
	g := p.Gain()
	if !g.AutoGain {
		args = append(args, "--gain", strconv.FormatFloat(float64(p.ISO)/100, 'f', -1, 64))
	}
	if g.AutoWhiteBalance {
		args = append(args, "--awb", "auto")
	} else {
		args = append(args, "--awbgains", "1,1")
	}
	if p.Format == "mjpeg" && p.Quality > 0 {
		args = append(args, "--quality", strconv.Itoa(p.Quality))
	}
	return append(args, "--output", path)
}
