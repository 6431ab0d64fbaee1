package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/botlauncher/internal/events"
	"github.com/smazurov/botlauncher/internal/logfile"
	"github.com/smazurov/botlauncher/internal/pidfile"
)

// LaunchIDEnv carries the launch ID into the child's environment.
const LaunchIDEnv = "BOTLAUNCHER_LAUNCH_ID"

// LaunchDetached starts command in a new session with stdout and stderr
// appended to one freshly truncated log file, records its PID and returns
// without waiting for it to finish.
func (s *Supervisor) LaunchDetached(command, logFilePath string) (*ManagedProcess, error) {
	proc, err := s.launch(command, logFilePath)
	if err != nil {
		var lerr *LaunchError
		code := ErrCodeStartFailed
		if errors.As(err, &lerr) {
			code = lerr.Code
		}
		s.logger.Error("Failed to launch process", "command", command, "code", code, "error", err)
		s.publish(events.LaunchFailedEvent{Command: command, Code: code, Error: err.Error()})
		return nil, err
	}
	return proc, nil
}

func (s *Supervisor) launch(command, logFilePath string) (*ManagedProcess, error) {
	args, err := parseCommand(command)
	if err != nil {
		return nil, newLaunchError(ErrCodeInvalidCommand, "failed to parse command", err)
	}
	if len(args) == 0 {
		return nil, newLaunchError(ErrCodeInvalidCommand, "empty command", nil)
	}

	path, err := s.resolveExecutable(args[0])
	if err != nil {
		return nil, newLaunchError(ErrCodeNotExecutable, fmt.Sprintf("cannot execute %q", args[0]), err)
	}

	logFile, err := logfile.Open(logFilePath)
	if err != nil {
		return nil, newLaunchError(ErrCodeLogNotWritable, fmt.Sprintf("cannot open log file %s", logFilePath), err)
	}
	// The child holds its own descriptor after Start.
	defer logFile.Close()

	launchID := uuid.NewString()
	cmd := exec.Command(path, args[1:]...)
	cmd.Args[0] = args[0]
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Env = append(cmd.Env, LaunchIDEnv+"="+launchID)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = detachedAttr()

	if err := cmd.Start(); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, newLaunchError(ErrCodeNotExecutable, fmt.Sprintf("cannot execute %q", args[0]), err)
		}
		return nil, newLaunchError(ErrCodeStartFailed, "failed to start process", err)
	}

	pid := cmd.Process.Pid
	startedAt := time.Now()
	s.logger.Info("Process started", "pid", pid, "command", command, "log", logFilePath, "launch_id", launchID)

	done := make(chan struct{})
	s.rmu.Lock()
	s.reaped[pid] = done
	s.rmu.Unlock()
	go s.reap(cmd, launchID, done)

	if s.cfg.PidFile != "" {
		rec := pidfile.Record{PID: pid, Cmdline: strings.Join(cmd.Args, " ")}
		if err := pidfile.WriteRecord(s.cfg.PidFile, rec); err != nil {
			s.logger.Warn("Failed to write PID file", "path", s.cfg.PidFile, "error", err)
		}
	}

	proc := &ManagedProcess{
		Command:   command,
		PID:       pid,
		LogPath:   logFilePath,
		Status:    StatusRunning,
		LaunchID:  launchID,
		StartedAt: startedAt,
	}
	s.publish(events.ProcessLaunchedEvent{
		PID:       pid,
		LaunchID:  launchID,
		Command:   command,
		LogPath:   logFilePath,
		StartedAt: startedAt,
	})
	return proc, nil
}

// reap collects the child's exit status while the launcher is alive.
func (s *Supervisor) reap(cmd *exec.Cmd, launchID string, done chan struct{}) {
	pid := cmd.Process.Pid
	err := cmd.Wait()
	exitCode := exitCodeFromError(err)

	s.rmu.Lock()
	delete(s.reaped, pid)
	s.rmu.Unlock()
	close(done)

	s.logger.Info("Process exited", "pid", pid, "exit_code", exitCode)
	s.publish(events.ProcessExitedEvent{
		PID:      pid,
		LaunchID: launchID,
		ExitCode: exitCode,
		ExitedAt: time.Now(),
	})
}

// Exited returns a channel closed when the launched pid has been reaped.
// It returns nil for PIDs this Supervisor did not launch or already reaped.
func (s *Supervisor) Exited(pid int) <-chan struct{} {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	ch, ok := s.reaped[pid]
	if !ok {
		return nil
	}
	return ch
}

// resolveExecutable finds name on PATH, or relative to WorkDir when it
// contains a slash.
func (s *Supervisor) resolveExecutable(name string) (string, error) {
	if strings.Contains(name, "/") && !filepath.IsAbs(name) && s.cfg.WorkDir != "" {
		name = filepath.Join(s.cfg.WorkDir, name)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) && s.cfg.WorkDir != "" {
		// LookPath may return a path relative to our cwd
		if abs, absErr := filepath.Abs(path); absErr == nil {
			path = abs
		}
	}
	return path, nil
}
