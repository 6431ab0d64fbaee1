// Package models holds request and response bodies of the control API.
package models

// HealthData is the body of the health check.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message" example:"API is healthy" doc:"Human readable status"`
}

// HealthResponse represents the HTTP response for the health check.
type HealthResponse struct {
	Body HealthData
}

// VersionData describes the running botlauncher build.
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Release version or dev"`
	GitCommit string `json:"git_commit" doc:"Commit the binary was built from"`
	BuildDate string `json:"build_date" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target OS and architecture"`
}

// VersionResponse represents the HTTP response for version information.
type VersionResponse struct {
	Body VersionData
}

// Stray is a matching process not tracked by the PID file.
type Stray struct {
	PID     int    `json:"pid" example:"4000" doc:"Process ID"`
	Cmdline string `json:"cmdline" doc:"Full command line"`
}

// BotStatusData is the observed state of the managed bot.
type BotStatusData struct {
	Name      string  `json:"name" example:"Telegram bot" doc:"Bot label"`
	Status    string  `json:"status" enum:"not_running,running,terminated" doc:"Lifecycle state from the PID file"`
	PID       int     `json:"pid,omitempty" example:"3310" doc:"Recorded process ID"`
	Command   string  `json:"command" example:"python run_telegram_bot.py" doc:"Configured command line"`
	LogPath   string  `json:"log_path" example:"telegram_bot.log" doc:"Combined stdout/stderr log"`
	StartedAt string  `json:"started_at,omitempty" doc:"Launch time (RFC 3339)"`
	Strays    []Stray `json:"strays,omitempty" doc:"Matching processes not recorded in the PID file"`
}

// BotStatusResponse represents the HTTP response for bot status.
type BotStatusResponse struct {
	Body BotStatusData
}

// RestartData summarises one restart.
type RestartData struct {
	PID        int      `json:"pid" example:"3311" doc:"PID of the new instance"`
	LaunchID   string   `json:"launch_id" doc:"Unique ID of this launch"`
	Terminated int      `json:"terminated" doc:"Prior instances that exited after SIGTERM"`
	Killed     int      `json:"killed" doc:"Prior instances that needed SIGKILL"`
	Failed     []string `json:"failed,omitempty" doc:"Prior instances that could not be stopped"`
}

// RestartResponse represents the HTTP response for a restart.
type RestartResponse struct {
	Body RestartData
}

// LogsInput selects how much of the log file to return.
type LogsInput struct {
	Lines int `query:"lines" default:"100" minimum:"1" maximum:"10000" doc:"Number of trailing lines"`
}

// LogsData holds the tail of the bot's log file.
type LogsData struct {
	Path  string   `json:"path" doc:"Log file path"`
	Lines []string `json:"lines" doc:"Trailing lines, oldest first"`
}

// LogsResponse represents the HTTP response for the log tail.
type LogsResponse struct {
	Body LogsData
}

// LogLineEvent is one line of bot output streamed over SSE.
type LogLineEvent struct {
	Line string `json:"line" doc:"Log line without trailing newline"`
}
