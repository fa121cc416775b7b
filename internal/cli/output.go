package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // settings or scenarios failed their checks
	ExitCommandError = 2 // the command could not run: missing files, no hardware, cage stopped
)

// Reasons attached to failures, reported as the code of a JSON error.
const (
	ErrCodeCage       = "E001"
	ErrCodeExperiment = "E002"
	ErrCodeStimulus   = "E003"
	ErrCodeCamera     = "E004"
	ErrCodeNotFound   = "E005"
	ErrCodeHardware   = "E006"
)

// ExitError carries the process exit code for a failed command and,
// optionally, the reason code of the part of the cage that failed.
type ExitError struct {
	Code    int
	Reason  string
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// hardwareError reports a device that could not be opened or claimed.
func hardwareError(message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Reason: ErrCodeHardware, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that are not an
// ExitError count as failures.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// reasonFor picks the reason code for err: a missing file wins over the
// part of the cage being checked.
func reasonFor(reason string, err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrCodeNotFound
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reason != "" {
		return exitErr.Reason
	}
	return reason
}

// OutputFormatter writes command results as text or as a JSON CLIResponse.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output; Writer when nil
	Verbose   bool
}

type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports a failed check of one part of the cage and returns the
// matching ExitFailure.
func (f *OutputFormatter) Fail(reason, message string, err error) error {
	reason = reasonFor(reason, err)
	if outErr := f.Error(reason, message, err.Error()); outErr != nil {
		return outErr
	}
	return &ExitError{Code: ExitFailure, Reason: reason, Message: message, Err: err}
}

// VerboseLog writes to ErrWriter so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
