package events

import "time"

// Event type constants for kelindar/event.
const (
	TypePriorInstanceTerminated uint32 = iota + 1
	TypeTerminationFailed
	TypeProcessLaunched
	TypeLaunchFailed
	TypeProcessExited
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// PriorInstanceTerminatedEvent is published for every prior instance that
// is gone after the termination step.
type PriorInstanceTerminatedEvent struct {
	PID    int    `json:"pid"`
	Forced bool   `json:"forced"`
	Source string `json:"source"` // "pidfile", "scan" or "systemd"
}

// Type returns the event type identifier for PriorInstanceTerminatedEvent.
func (e PriorInstanceTerminatedEvent) Type() uint32 { return TypePriorInstanceTerminated }

// TerminationFailedEvent is published when a prior instance could not be signalled
// or survived SIGKILL.
type TerminationFailedEvent struct {
	PID   int    `json:"pid"`
	Error string `json:"error"`
}

// Type returns the event type identifier for TerminationFailedEvent.
func (e TerminationFailedEvent) Type() uint32 { return TypeTerminationFailed }

// ProcessLaunchedEvent is published after a successful detached launch.
type ProcessLaunchedEvent struct {
	PID       int       `json:"pid"`
	LaunchID  string    `json:"launch_id"`
	Command   string    `json:"command"`
	LogPath   string    `json:"log_path"`
	StartedAt time.Time `json:"started_at"`
}

// Type returns the event type identifier for ProcessLaunchedEvent.
func (e ProcessLaunchedEvent) Type() uint32 { return TypeProcessLaunched }

// LaunchFailedEvent is published when the launch step fails.
type LaunchFailedEvent struct {
	Command string `json:"command"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// Type returns the event type identifier for LaunchFailedEvent.
func (e LaunchFailedEvent) Type() uint32 { return TypeLaunchFailed }

// ProcessExitedEvent is published when a launched process exits while the
// launcher is still alive to observe it.
type ProcessExitedEvent struct {
	PID      int       `json:"pid"`
	LaunchID string    `json:"launch_id"`
	ExitCode int       `json:"exit_code"`
	ExitedAt time.Time `json:"exited_at"`
}

// Type returns the event type identifier for ProcessExitedEvent.
func (e ProcessExitedEvent) Type() uint32 { return TypeProcessExited }
