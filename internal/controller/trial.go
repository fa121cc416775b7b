package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/headfix/internal/eventlog"
	"github.com/roach88/headfix/internal/hw"
	"github.com/roach88/headfix/internal/metrics"
	"github.com/roach88/headfix/internal/subject"
	"github.com/roach88/headfix/internal/trigger"
)

// VideoName builds the file name of a trial video:
// <tag>_<stimulus>_<unix seconds>.<format>.
func VideoName(tag uint64, stimID string, at time.Time, format string) string {
	return fmt.Sprintf("%s.%s", TriggerMessage(tag, stimID, at), format)
}

// TriggerMessage is the start message sent to peer devices.
func TriggerMessage(tag uint64, stimID string, at time.Time) string {
	return fmt.Sprintf("%d_%s_%d", tag, stimID, at.Unix())
}

// runTrial runs one contact-triggered trial. Failures never escape: the
// outputs are forced low, the camera is stopped and the error is logged.
func (c *Controller) runTrial(ctx context.Context, s *subject.Subject) {
	fixed := c.doHeadFix
	var outcome string
	err := c.Actuators.Guard(func() (err error) {
		outcome, err = c.trial(ctx, s, fixed)
		return err
	})
	if err == nil {
		c.Metrics.Trial(outcome)
		return
	}
	if stopErr := c.Camera.StopRecording(); stopErr != nil {
		c.Logger.Error("failed to stop camera after trial error", "tag", s.Tag(), "error", stopErr)
	}
	if c.peersRecording {
		c.Trigger.Trigger(trigger.StopMessage)
		c.peersRecording = false
	}
	c.Metrics.Trial(metrics.OutcomeAbandoned)

	step := "trial"
	switch {
	case IsCameraError(err):
		step = "camera"
	case IsStimulusError(err):
		step = "stimulus"
	}
	c.Logger.Error("trial abandoned", "tag", s.Tag(), "head_fix", fixed, "step", step, "error", err)
}

// trial is the body of one trial and reports its metrics outcome. The clamp
// and LED are only ever driven high here; Guard lowers them on any error.
func (c *Controller) trial(ctx context.Context, s *subject.Subject, fixed bool) (string, error) {
	tag := s.Tag()
	log := c.day.Log

	if fixed {
		c.setState(Clamping)
		if err := c.Actuators.SetClamp(true); err != nil {
			return "", newTrialError(ErrCodeActuator, tag, "engage clamp", err)
		}
		c.Clock.Sleep(c.cfg.SettleTime)
		if !c.level(c.cfg.Contact) {
			c.setState(ClampFailed)
			if err := c.Actuators.SetClamp(false); err != nil {
				return "", newTrialError(ErrCodeActuator, tag, "release clamp", err)
			}
			if err := log.Write(tag, eventlog.CheckMinus); err != nil {
				return "", newTrialError(ErrCodeEventLog, tag, "log check-", err)
			}
			c.Logger.Info("contact lost while clamping", "tag", tag)
			return metrics.OutcomeCheckFail, nil
		}
		s.AddHeadFix()
		if err := log.Write(tag, eventlog.CheckPlus); err != nil {
			return "", newTrialError(ErrCodeEventLog, tag, "log check+", err)
		}
	} else if err := log.Write(tag, eventlog.CheckNoFix); err != nil {
		return "", newTrialError(ErrCodeEventLog, tag, "log no-fix check", err)
	}

	c.setState(Recording)
	stimID, err := c.Stimulus.Configure(s)
	if err != nil {
		return "", newTrialError(ErrCodeStimulus, tag, "configure stimulus", err)
	}
	at := c.Clock.Now()
	name := VideoName(tag, stimID, at, c.cfg.VideoFormat)
	path := c.day.VideoPath(name)
	if err := log.Write(tag, name); err != nil {
		return "", newTrialError(ErrCodeEventLog, tag, "log video name", err)
	}

	synced := c.Trigger != nil
	if synced {
		c.Trigger.Trigger(TriggerMessage(tag, stimID, at))
		c.peersRecording = true
		if err := c.Camera.StartRecording(path); err != nil {
			return "", newTrialError(ErrCodeCamera, tag, "start recording", err)
		}
		c.Clock.Sleep(c.cfg.CameraStartDelay)
		if err := c.Actuators.SetLED(true); err != nil {
			return "", newTrialError(ErrCodeActuator, tag, "light LED", err)
		}
	} else {
		if err := c.Actuators.SetLED(true); err != nil {
			return "", newTrialError(ErrCodeActuator, tag, "light LED", err)
		}
		if err := c.Camera.StartRecording(path); err != nil {
			return "", newTrialError(ErrCodeCamera, tag, "start recording", err)
		}
	}

	out, err := c.Stimulus.Run(context.WithoutCancel(ctx))
	if err != nil {
		return "", newTrialError(ErrCodeStimulus, tag, "run stimulus", err)
	}

	if synced {
		if err := c.Actuators.SetLED(false); err != nil {
			return "", newTrialError(ErrCodeActuator, tag, "darken LED", err)
		}
		c.Clock.Sleep(c.cfg.CameraStartDelay)
		c.Trigger.Trigger(trigger.StopMessage)
		c.peersRecording = false
		if err := c.Camera.StopRecording(); err != nil {
			return "", newTrialError(ErrCodeCamera, tag, "stop recording", err)
		}
	} else {
		if err := c.Camera.StopRecording(); err != nil {
			return "", newTrialError(ErrCodeCamera, tag, "stop recording", err)
		}
		if err := c.Actuators.SetLED(false); err != nil {
			return "", newTrialError(ErrCodeActuator, tag, "darken LED", err)
		}
	}
	if err := c.day.Own(path); err != nil {
		c.Logger.Warn("could not hand over video", "path", path, "error", err)
	}

	c.setState(Releasing)
	if fixed {
		if err := c.Actuators.SetClamp(false); err != nil {
			return "", newTrialError(ErrCodeActuator, tag, "release clamp", err)
		}
	}
	if err := c.Stimulus.LogFile(); err != nil {
		return "", newTrialError(ErrCodeStimulus, tag, "log stimulus", err)
	}
	s.AddHeadFixRewards(out.Rewards)
	if err := log.Write(tag, eventlog.Complete); err != nil {
		return "", newTrialError(ErrCodeEventLog, tag, "log complete", err)
	}

	// Give the subject a chance to let go before the next arming.
	release := c.Clock.Now().Add(c.cfg.Skedaddle)
	for c.Clock.Now().Before(release) {
		if c.waitFor(c.cfg.Contact, hw.Falling, hw.Low) {
			break
		}
	}
	if fixed {
		return metrics.OutcomeFixed, nil
	}
	return metrics.OutcomeNoFix, nil
}
