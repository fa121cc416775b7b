package camera

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProc struct {
	interrupted bool
	waitErr     error
}

func (p *fakeProc) Interrupt() error { p.interrupted = true; return nil }
func (p *fakeProc) Wait() error      { return p.waitErr }

type fakeStarter struct {
	calls [][]string
	procs []*fakeProc
	err   error
}

func (s *fakeStarter) start(name string, args ...string) (Process, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.calls = append(s.calls, append([]string{name}, args...))
	p := &fakeProc{}
	s.procs = append(s.procs, p)
	return p, nil
}

func TestGainMode(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, GainMode{AutoGain: true}, p.Gain())
	assert.Equal(t, "gain from current illumination with no white balancing", p.Gain().String())

	p.ISO = 400
	p.WhiteBalance = true
	assert.Equal(t, GainMode{AutoWhiteBalance: true}, p.Gain())
	assert.Equal(t, "gain from ISO with white balancing", p.Gain().String())
}

func TestParams_Args(t *testing.T) {
	p := DefaultParams()
	p.ISO = 200
	p.Preview = Window{10, 20, 330, 260}

	args := p.Args("/data/M42.h264")

	assert.Contains(t, args, "--gain")
	assert.Contains(t, args, "2")
	assert.Contains(t, args, "10,20,320,240")
	assert.Contains(t, args, "--awbgains")
	assert.Equal(t, []string{"--output", "/data/M42.h264"}, args[len(args)-2:])
	assert.NotContains(t, args, "--quality")
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.Width = 0
	p.Framerate = -1
	p.Format = ""
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolution")
	assert.Contains(t, err.Error(), "framerate")
	assert.Contains(t, err.Error(), "format")
}

func TestRecorder_StartStop(t *testing.T) {
	s := &fakeStarter{}
	r, err := NewRecorder(DefaultParams(), WithStarter(s.start))
	require.NoError(t, err)

	require.NoError(t, r.StartRecording("/v/M1.h264"))
	assert.True(t, r.Recording())
	assert.Error(t, r.StartRecording("/v/M2.h264"), "one capture at a time")

	require.NoError(t, r.StopRecording())
	assert.False(t, r.Recording())
	require.Len(t, s.procs, 1)
	assert.True(t, s.procs[0].interrupted)
	assert.Equal(t, "libcamera-vid", s.calls[0][0])
}

func TestRecorder_StopIsIdempotent(t *testing.T) {
	s := &fakeStarter{}
	r, err := NewRecorder(DefaultParams(), WithStarter(s.start))
	require.NoError(t, err)

	assert.NoError(t, r.StopRecording())
	require.NoError(t, r.StartRecording("/v/M1.h264"))
	assert.NoError(t, r.StopRecording())
	assert.NoError(t, r.StopRecording())
}

func TestRecorder_StartFailure(t *testing.T) {
	s := &fakeStarter{err: errors.New("no such file")}
	r, err := NewRecorder(DefaultParams(), WithStarter(s.start))
	require.NoError(t, err)

	assert.Error(t, r.StartRecording("/v/M1.h264"))
	assert.False(t, r.Recording())
}

func TestRecorder_WaitError(t *testing.T) {
	s := &fakeStarter{}
	r, err := NewRecorder(DefaultParams(), WithStarter(s.start))
	require.NoError(t, err)
	require.NoError(t, r.StartRecording("/v/M1.h264"))
	s.procs[0].waitErr = errors.New("wait failed")

	assert.Error(t, r.StopRecording())
	assert.False(t, r.Recording())
}

func TestNewRecorder_RejectsBadParams(t *testing.T) {
	p := DefaultParams()
	p.Command = ""
	_, err := NewRecorder(p)
	assert.Error(t, err)
}
