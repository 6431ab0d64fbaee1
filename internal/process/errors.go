package process

import "fmt"

// Error codes for launch failures.
const (
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeNotExecutable  = "NOT_EXECUTABLE"
	ErrCodeLogNotWritable = "LOG_NOT_WRITABLE"
	ErrCodeStartFailed    = "START_FAILED"
)

// LaunchError is returned when the bot could not be started.
type LaunchError struct {
	Code    string
	Message string
	Cause   error
}

func (e *LaunchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LaunchError) Unwrap() error {
	return e.Cause
}

func newLaunchError(code, message string, cause error) *LaunchError {
	return &LaunchError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// TerminationError records a prior instance that could not be stopped.
// It never aborts a restart.
type TerminationError struct {
	PID    int    // 0 when the target is a systemd unit
	Unit   string // systemd unit name, if any
	Signal string
	Cause  error
}

func (e *TerminationError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("failed to stop unit %s: %v", e.Unit, e.Cause)
	}
	if e.Signal != "" {
		return fmt.Sprintf("failed to send %s to %d: %v", e.Signal, e.PID, e.Cause)
	}
	return fmt.Sprintf("failed to terminate %d: %v", e.PID, e.Cause)
}

func (e *TerminationError) Unwrap() error {
	return e.Cause
}
