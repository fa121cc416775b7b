package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Process is a running capture.
type Process interface {
	Interrupt() error
	Wait() error
}

// Starter launches a capture program.
type Starter func(name string, args ...string) (Process, error)

type execProcess struct {
	cmd *exec.Cmd
}

func (p execProcess) Interrupt() error { return p.cmd.Process.Signal(os.Interrupt) }
func (p execProcess) Wait() error      { return p.cmd.Wait() }

// ExecStarter runs the program as a child process.
func ExecStarter(name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return execProcess{cmd: cmd}, nil
}

// Recorder records one video at a time. The camera driver is composed in
// through Starter rather than owned.
type Recorder struct {
	params Params
	start  Starter
	logger *slog.Logger

	proc Process
	path string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithStarter replaces how capture programs are launched.
func WithStarter(s Starter) Option {
	return func(r *Recorder) { r.start = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder validates p and returns an idle recorder.
func NewRecorder(p Params, opts ...Option) (*Recorder, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("camera params: %w", err)
	}
	r := &Recorder{params: p, start: ExecStarter}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger.Debug("camera configured", "gain", p.Gain().String(), "format", p.Format)
	return r, nil
}

// Params returns the capture settings.
func (r *Recorder) Params() Params { return r.params }

// Recording reports whether a capture is running.
func (r *Recorder) Recording() bool { return r.proc != nil }

// StartRecording begins recording to path.
func (r *Recorder) StartRecording(path string) error {
	if r.proc != nil {
		return fmt.Errorf("start recording %s: already recording %s", path, r.path)
	}
	proc, err := r.start(r.params.Command, r.params.Args(path)...)
	if err != nil {
		return fmt.Errorf("start recording %s: %w", path, err)
	}
	r.proc, r.path = proc, path
	return nil
}

// StopRecording ends the current capture. Stopping an idle recorder does
// nothing, so it is safe on every failure path.
func (r *Recorder) StopRecording() error {
	if r.proc == nil {
		return nil
	}
	proc, path := r.proc, r.path
	r.proc, r.path = nil, ""

	if err := proc.Interrupt(); err != nil {
		return fmt.Errorf("stop recording %s: %w", path, err)
	}
	// The capture program exits non-zero when interrupted.
	if err := proc.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("stop recording %s: %w", path, err)
		}
		r.logger.Debug("capture exited", "path", path, "status", exitErr.String())
	}
	return nil
}
