package controller

import (
	"errors"
	"fmt"
)

// TrialError describes why a trial was abandoned.
type TrialError struct {
	// Code identifies the failing step.
	Code TrialErrorCode

	// Message is a human-readable description.
	Message string

	// Tag is the subject in the chamber.
	Tag uint64

	// Err is the underlying failure.
	Err error
}

// TrialErrorCode categorizes trial failures.
type TrialErrorCode string

const (
	// ErrCodeActuator indicates a clamp or LED write failed.
	ErrCodeActuator TrialErrorCode = "ACTUATOR_FAILED"

	// ErrCodeCamera indicates the camera failed to start or stop.
	ErrCodeCamera TrialErrorCode = "CAMERA_FAILED"

	// ErrCodeStimulus indicates the stimulus failed to configure or run.
	ErrCodeStimulus TrialErrorCode = "STIMULUS_FAILED"

	// ErrCodeEventLog indicates an event could not be written.
	ErrCodeEventLog TrialErrorCode = "EVENT_LOG_FAILED"
)

// Error implements the error interface.
func (e *TrialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (tag=%013d): %v", e.Code, e.Message, e.Tag, e.Err)
	}
	return fmt.Sprintf("%s: %s (tag=%013d)", e.Code, e.Message, e.Tag)
}

func (e *TrialError) Unwrap() error { return e.Err }

func newTrialError(code TrialErrorCode, tag uint64, msg string, err error) *TrialError {
	return &TrialError{Code: code, Message: msg, Tag: tag, Err: err}
}

// IsCameraError reports whether err is a camera failure.
// Uses errors.As to handle wrapped errors.
func IsCameraError(err error) bool {
	return hasCode(err, ErrCodeCamera)
}

// IsStimulusError reports whether err is a stimulus failure.
func IsStimulusError(err error) bool {
	return hasCode(err, ErrCodeStimulus)
}

func hasCode(err error, code TrialErrorCode) bool {
	var te *TrialError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}
