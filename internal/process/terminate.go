package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/botlauncher/internal/events"
	"github.com/smazurov/botlauncher/internal/pidfile"
)

// Candidate sources.
const (
	sourcePidFile = "pidfile"
	sourceScan    = "scan"
	sourcePrior   = "prior"
	sourceSystemd = "systemd"
)

var errSurvivedKill = errors.New("process survived SIGKILL")

// TerminatePriorInstances stops every earlier instance of the bot.
//
// Candidates are the PID recorded in the PID file, if it is alive and runs
// the recorded command line or one containing matchPattern, every process
// found by a command-line scan, and live PIDs passed via WithPriorPIDs. The launcher and its parent are never candidates.
// An empty matchPattern uses MatchPattern().
//
// Finding nothing is the normal case and yields an empty report. Failures
// are recorded in the report and logged; they never abort a restart.
func (s *Supervisor) TerminatePriorInstances(ctx context.Context, matchPattern string) *TerminateReport {
	if matchPattern == "" {
		matchPattern = s.MatchPattern()
	}
	report := &TerminateReport{}
	sources := s.collectCandidates(matchPattern)

	if s.cfg.SystemdUnit != "" && s.units != nil {
		s.stopUnit(ctx, report)
	}

	if len(sources) == 0 {
		s.logger.Debug("No prior instance found", "pattern", matchPattern)
		s.cleanupPidFile(report)
		return report
	}

	for pid := range sources {
		report.Matched = append(report.Matched, pid)
	}
	slices.Sort(report.Matched)
	if len(report.Matched) > 1 {
		s.logger.Warn("Multiple prior instances found, terminating all", "pids", report.Matched)
	}

	var pending []int
	for _, pid := range report.Matched {
		s.logger.Info("Sending SIGTERM to prior instance", "pid", pid, "source", sources[pid])
		err := signalProcess(pid, unix.SIGTERM)
		switch {
		case err == nil:
			pending = append(pending, pid)
		case isNoSuchProcess(err):
			s.terminated(report, sources, pid, false)
		default:
			s.failed(report, &TerminationError{PID: pid, Signal: "SIGTERM", Cause: err})
		}
	}

	if !s.cfg.ConfirmTermination {
		for _, pid := range pending {
			s.terminated(report, sources, pid, false)
		}
		s.cleanupPidFile(report)
		return report
	}

	exited, survivors, err := s.waitExit(ctx, pending, s.cfg.GracefulTimeout)
	for _, pid := range exited {
		s.terminated(report, sources, pid, false)
	}
	if err != nil {
		s.abandon(report, survivors, err)
		return report
	}

	var killing []int
	for _, pid := range survivors {
		s.logger.Warn("Graceful shutdown timeout, forcing kill", "pid", pid, "timeout", s.cfg.GracefulTimeout)
		err := signalProcess(pid, unix.SIGKILL)
		switch {
		case err == nil:
			killing = append(killing, pid)
		case isNoSuchProcess(err):
			s.terminated(report, sources, pid, false)
		default:
			s.failed(report, &TerminationError{PID: pid, Signal: "SIGKILL", Cause: err})
		}
	}

	killed, survivors, err := s.waitExit(ctx, killing, s.cfg.KillTimeout)
	for _, pid := range killed {
		s.terminated(report, sources, pid, true)
	}
	if err != nil {
		s.abandon(report, survivors, err)
		return report
	}
	for _, pid := range survivors {
		s.failed(report, &TerminationError{PID: pid, Signal: "SIGKILL", Cause: errSurvivedKill})
	}

	s.cleanupPidFile(report)
	return report
}

// collectCandidates merges prior PIDs, the verified PID file entry and scan
// matches.
func (s *Supervisor) collectCandidates(pattern string) map[int]string {
	self, parent := os.Getpid(), os.Getppid()
	sources := make(map[int]string)

	for _, pid := range s.prior {
		if pid > 0 && pid != self && pid != parent && isAlive(pid) && !isZombie(pid) {
			sources[pid] = sourcePrior
		}
	}

	rec, err := pidfile.ReadRecord(s.cfg.PidFile)
	switch {
	case err == nil:
		pid := rec.PID
		if pid != self && pid != parent && s.verify(pid, pattern, rec.Cmdline) {
			sources[pid] = sourcePidFile
		} else {
			s.logger.Debug("Ignoring stale PID file", "path", s.cfg.PidFile, "pid", pid)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		s.logger.Warn("Failed to read PID file", "path", s.cfg.PidFile, "error", err)
	}

	procs, err := s.finder.Find(pattern, self, parent)
	if err != nil {
		s.logger.Warn("Failed to scan process table", "error", err)
	}
	for _, p := range procs {
		if p.PID == self || p.PID == parent || p.PID <= 0 {
			continue
		}
		if _, ok := sources[p.PID]; !ok {
			sources[p.PID] = sourceScan
			s.logger.Debug("Found prior instance", "pid", p.PID, "cmdline", p.Cmdline)
		}
	}
	return sources
}

func (s *Supervisor) stopUnit(ctx context.Context, report *TerminateReport) {
	unit := s.cfg.SystemdUnit
	s.logger.Info("Stopping systemd unit", "unit", unit)
	if err := s.units.StopUnit(ctx, unit); err != nil {
		s.failed(report, &TerminationError{Unit: unit, Cause: err})
		return
	}
	report.UnitStopped = true
	s.publish(events.PriorInstanceTerminatedEvent{Source: sourceSystemd})
}

// waitExit polls until every pid has exited, the timeout elapses or ctx is
// done. It returns the exited and remaining PIDs.
func (s *Supervisor) waitExit(ctx context.Context, pids []int, timeout time.Duration) (exited, remaining []int, err error) {
	remaining = slices.Clone(pids)
	if len(remaining) == 0 {
		return nil, nil, nil
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		remaining = slices.DeleteFunc(remaining, func(pid int) bool {
			if isAlive(pid) {
				return false
			}
			exited = append(exited, pid)
			return true
		})
		if len(remaining) == 0 {
			return exited, nil, nil
		}

		select {
		case <-ctx.Done():
			return exited, remaining, ctx.Err()
		case <-deadline.C:
			return exited, remaining, nil
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) terminated(report *TerminateReport, sources map[int]string, pid int, forced bool) {
	if forced {
		report.Killed = append(report.Killed, pid)
		s.logger.Info("Killed prior instance", "pid", pid)
	} else {
		report.Terminated = append(report.Terminated, pid)
		s.logger.Info("Terminated prior instance", "pid", pid)
	}
	s.publish(events.PriorInstanceTerminatedEvent{PID: pid, Forced: forced, Source: sources[pid]})
}

func (s *Supervisor) failed(report *TerminateReport, terr *TerminationError) {
	report.Failed = append(report.Failed, terr)
	s.logger.Warn("Failed to terminate prior instance", "pid", terr.PID, "unit", terr.Unit, "error", terr.Cause)
	s.publish(events.TerminationFailedEvent{PID: terr.PID, Error: terr.Error()})
}

// abandon records processes left running because ctx ended.
func (s *Supervisor) abandon(report *TerminateReport, pids []int, cause error) {
	for _, pid := range pids {
		s.failed(report, &TerminationError{PID: pid, Cause: fmt.Errorf("wait interrupted: %w", cause)})
	}
}

// cleanupPidFile removes the PID file unless its process survived.
func (s *Supervisor) cleanupPidFile(report *TerminateReport) {
	pid, err := pidfile.Read(s.cfg.PidFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.removePidFile()
		}
		return
	}
	for _, f := range report.Failed {
		if f.PID == pid {
			return
		}
	}
	s.removePidFile()
}

func (s *Supervisor) removePidFile() {
	if err := pidfile.Remove(s.cfg.PidFile); err != nil {
		s.logger.Warn("Failed to remove PID file", "path", s.cfg.PidFile, "error", err)
	}
}
