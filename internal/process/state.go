package process

import "time"

// Status represents the lifecycle state of the managed bot process.
type Status string

// Process states.
const (
	StatusNotRunning Status = "not_running" // Never launched or PID file absent
	StatusRunning    Status = "running"     // Launched and alive
	StatusTerminated Status = "terminated"  // Launched, since exited or killed
)

// ManagedProcess describes one launched instance of the bot.
type ManagedProcess struct {
	Command   string    `json:"command"`
	PID       int       `json:"pid,omitempty"`
	LogPath   string    `json:"log_path"`
	Status    Status    `json:"status"`
	LaunchID  string    `json:"launch_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// TerminateReport summarises one termination pass.
// An empty report is the normal outcome when no prior instance exists.
type TerminateReport struct {
	// Matched lists every candidate PID found, in ascending order.
	Matched []int
	// Terminated lists PIDs that exited after SIGTERM (or were already gone).
	Terminated []int
	// Killed lists PIDs that needed SIGKILL.
	Killed []int
	// UnitStopped is set when a configured systemd unit was stopped.
	UnitStopped bool
	// Failed holds signal delivery failures and survivors.
	Failed []*TerminationError
}

// Found reports whether any prior instance was found.
func (r *TerminateReport) Found() bool {
	return len(r.Matched) > 0 || r.UnitStopped
}

// Stopped returns the number of instances confirmed stopped.
func (r *TerminateReport) Stopped() int {
	return len(r.Terminated) + len(r.Killed)
}

// RestartResult is the outcome of a full terminate, launch, report sequence.
type RestartResult struct {
	Terminated *TerminateReport
	Process    *ManagedProcess
}

// StatusReport is the observed state of the managed process.
type StatusReport struct {
	Process ManagedProcess `json:"process"`
	// Strays are matching processes not recorded in the PID file.
	Strays []Stray `json:"strays,omitempty"`
}

// Stray is a matching process not tracked by the PID file.
type Stray struct {
	PID     int    `json:"pid"`
	Cmdline string `json:"cmdline"`
}
