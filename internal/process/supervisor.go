package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/botlauncher/internal/events"
	"github.com/smazurov/botlauncher/internal/pidfile"
	"github.com/smazurov/botlauncher/internal/procscan"
)

// Defaults matching the shell launcher this package replaces.
const (
	DefaultName            = "Telegram bot"
	DefaultCommand         = "python run_telegram_bot.py"
	DefaultMatchPattern    = "run_telegram_bot.py"
	DefaultLogPath         = "telegram_bot.log"
	DefaultPidFile         = "telegram_bot.pid"
	DefaultGracefulTimeout = 5 * time.Second
	DefaultKillTimeout     = 2 * time.Second
	DefaultPollInterval    = 100 * time.Millisecond
)

// Config describes the bot process and how to replace it.
type Config struct {
	// Name is the label used in the launch report line.
	Name string
	// Command is the bot command line, split with shell-like quoting.
	Command string
	// MatchPattern selects prior instances by command-line substring.
	// Empty derives it from Command, see Supervisor.MatchPattern.
	MatchPattern string
	LogPath      string
	PidFile      string
	// WorkDir is the child's working directory; empty inherits ours.
	WorkDir string
	// Env entries (KEY=VALUE) added to the inherited environment.
	Env []string

	GracefulTimeout time.Duration
	KillTimeout     time.Duration
	PollInterval    time.Duration
	// ConfirmTermination waits for prior instances to exit before launching.
	// When false, SIGTERM is sent and the launch proceeds immediately.
	ConfirmTermination bool

	// SystemdUnit is stopped before signalling when set.
	SystemdUnit string
}

// DefaultConfig returns the stock bot launch configuration with
// confirmed termination enabled.
func DefaultConfig() Config {
	return Config{
		Name:               DefaultName,
		Command:            DefaultCommand,
		LogPath:            DefaultLogPath,
		PidFile:            DefaultPidFile,
		GracefulTimeout:    DefaultGracefulTimeout,
		KillTimeout:        DefaultKillTimeout,
		PollInterval:       DefaultPollInterval,
		ConfirmTermination: true,
	}
}

// ProcessFinder enumerates running processes by command line.
type ProcessFinder interface {
	Find(pattern string, exclude ...int) ([]procscan.Process, error)
	Cmdline(pid int) (string, error)
}

// UnitStopper stops a systemd unit and waits for the job to finish.
type UnitStopper interface {
	StopUnit(ctx context.Context, name string) error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithFinder replaces the /proc scanner.
func WithFinder(f ProcessFinder) Option {
	return func(s *Supervisor) {
		s.finder = f
	}
}

// WithEventBus publishes lifecycle events to bus.
func WithEventBus(bus *events.Bus) Option {
	return func(s *Supervisor) {
		s.bus = bus
	}
}

// WithUnitStopper enables stopping Config.SystemdUnit.
func WithUnitStopper(u UnitStopper) Option {
	return func(s *Supervisor) {
		s.units = u
	}
}

// WithReportWriter sets where the launch report line is written.
// Defaults to stdout.
func WithReportWriter(w io.Writer) Option {
	return func(s *Supervisor) {
		s.out = w
	}
}

// WithPriorPIDs names processes an earlier supervisor launched. Those still
// alive are terminated even when neither the PID file nor the match
// pattern leads to them, as after a config change moved both.
func WithPriorPIDs(pids ...int) Option {
	return func(s *Supervisor) {
		s.prior = append(s.prior, pids...)
	}
}

// Supervisor terminates, launches and reports one bot process.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger
	finder ProcessFinder
	bus    *events.Bus
	units  UnitStopper
	out    io.Writer
	prior  []int

	// mu serialises Restart calls from the watch loop
	mu sync.Mutex
	// reaped is closed by the reaper when the child it waits on exits
	reaped map[int]chan struct{}
	rmu    sync.Mutex
}

// New creates a Supervisor. Zero durations fall back to the defaults.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = DefaultKillTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	s := &Supervisor{
		cfg:    cfg,
		logger: logger,
		out:    os.Stdout,
		reaped: make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.finder == nil {
		s.finder = procscan.New(logger)
	}
	return s
}

// Config returns the effective configuration.
func (s *Supervisor) Config() Config {
	return s.cfg
}

// MatchPattern returns the pattern used to find prior instances. Without
// an explicit pattern it is derived from the command: the stock command
// keeps the script-name pattern so instances started by other means are
// still found, any other command matches on its full argument list.
func (s *Supervisor) MatchPattern() string {
	if s.cfg.MatchPattern != "" {
		return s.cfg.MatchPattern
	}
	args, err := parseCommand(s.cfg.Command)
	if err != nil {
		return ""
	}
	derived := strings.Join(args, " ")
	if derived == DefaultCommand {
		return DefaultMatchPattern
	}
	return derived
}

// Restart terminates prior instances, launches one new instance and
// reports its PID. Termination failures are recorded in the result but do
// not stop the launch.
func (s *Supervisor) Restart(ctx context.Context) (*RestartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := s.TerminatePriorInstances(ctx, s.MatchPattern())
	result := &RestartResult{Terminated: report}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("restart cancelled: %w", err)
	}

	proc, err := s.LaunchDetached(s.cfg.Command, s.cfg.LogPath)
	if err != nil {
		return result, err
	}
	result.Process = proc

	if err := s.ReportLaunch(proc.PID); err != nil {
		s.logger.Warn("Failed to write launch report", "error", err)
	}
	return result, nil
}

// ReportLaunch writes the single confirmation line for pid.
func (s *Supervisor) ReportLaunch(pid int) error {
	s.logger.Info("Reported launch", "name", s.cfg.Name, "pid", pid)
	_, err := fmt.Fprintf(s.out, "Started %s with PID: %d\n", s.cfg.Name, pid)
	return err
}

// Status reports the recorded process state and any untracked matches.
func (s *Supervisor) Status(_ context.Context) (*StatusReport, error) {
	pattern := s.MatchPattern()
	report := &StatusReport{
		Process: ManagedProcess{
			Command: s.cfg.Command,
			LogPath: s.cfg.LogPath,
			Status:  StatusNotRunning,
		},
	}

	exclude := []int{os.Getpid(), os.Getppid()}
	rec, err := pidfile.ReadRecord(s.cfg.PidFile)
	switch {
	case err == nil:
		pid := rec.PID
		report.Process.PID = pid
		report.Process.Status = StatusTerminated
		if s.verify(pid, pattern, rec.Cmdline) {
			report.Process.Status = StatusRunning
		}
		if info, statErr := os.Stat(s.cfg.PidFile); statErr == nil {
			report.Process.StartedAt = info.ModTime()
		}
		exclude = append(exclude, pid)
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	procs, err := s.finder.Find(pattern, exclude...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan processes: %w", err)
	}
	for _, p := range procs {
		report.Strays = append(report.Strays, Stray{PID: p.PID, Cmdline: p.Cmdline})
	}
	return report, nil
}

// verify reports whether pid is alive and still runs the command recorded
// for it, or one matching pattern. The recorded command line keeps a bot
// identifiable after the configured command or pattern changed; either
// check rejects a PID the OS has handed to an unrelated process.
func (s *Supervisor) verify(pid int, pattern, recorded string) bool {
	if !isAlive(pid) {
		return false
	}
	cmdline, err := s.finder.Cmdline(pid)
	if err != nil {
		return false
	}
	if recorded != "" && pidfile.NormalizeCmdline(cmdline) == recorded {
		return true
	}
	return pattern != "" && strings.Contains(cmdline, pattern)
}

func (s *Supervisor) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
