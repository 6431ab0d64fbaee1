// Package procscan enumerates the OS process table and matches processes
// by command line, the way `pkill -f` does.
package procscan

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultRoot is the procfs mount point scanned on Linux.
const DefaultRoot = "/proc"

// psTimeout bounds the ps fallback on systems without procfs.
const psTimeout = 5 * time.Second

// Process is a running process and its command line.
type Process struct {
	PID     int
	Cmdline string
}

// Scanner reads the process table from a procfs root, falling back to ps(1)
// when procfs is not available (macOS, BSD).
type Scanner struct {
	root   string
	logger *slog.Logger
}

// New creates a scanner over /proc.
func New(logger *slog.Logger) *Scanner {
	return NewWithRoot(DefaultRoot, logger)
}

// NewWithRoot creates a scanner over an arbitrary procfs-shaped directory.
func NewWithRoot(root string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{root: root, logger: logger}
}

// Find returns every process whose command line contains pattern,
// ordered by PID. PIDs listed in exclude are never returned.
// An empty pattern matches nothing.
func (s *Scanner) Find(pattern string, exclude ...int) ([]Process, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, nil
	}

	all, err := s.List()
	if err != nil {
		return nil, err
	}

	skip := make(map[int]bool, len(exclude))
	for _, pid := range exclude {
		skip[pid] = true
	}

	var matches []Process
	for _, p := range all {
		if skip[p.PID] {
			continue
		}
		if strings.Contains(p.Cmdline, pattern) {
			matches = append(matches, p)
		}
	}

	s.logger.Debug("Process scan complete", "pattern", pattern, "scanned", len(all), "matched", len(matches))
	return matches, nil
}

// List returns all processes with a non-empty command line.
func (s *Scanner) List() ([]Process, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Debug("procfs unavailable, falling back to ps", "root", s.root, "error", err)
		return listFromPS()
	}

	var procs []Process
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pid, convErr := strconv.Atoi(entry.Name())
		if convErr != nil {
			continue
		}

		cmdline, readErr := s.readCmdline(pid)
		if readErr != nil || cmdline == "" {
			// Exited during the scan, not ours to read, or a kernel thread
			continue
		}
		procs = append(procs, Process{PID: pid, Cmdline: cmdline})
	}

	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
	return procs, nil
}

// Cmdline returns the command line of a single process.
func (s *Scanner) Cmdline(pid int) (string, error) {
	if _, err := os.Stat(s.root); err != nil {
		return cmdlineFromPS(pid)
	}
	return s.readCmdline(pid)
}

func (s *Scanner) readCmdline(pid int) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return "", err
	}
	return formatCmdline(data), nil
}

// formatCmdline turns a NUL-separated argv into a space-separated string.
func formatCmdline(data []byte) string {
	data = bytes.TrimRight(data, "\x00")
	return strings.TrimSpace(string(bytes.ReplaceAll(data, []byte{0}, []byte{' '})))
}

func listFromPS() ([]Process, error) {
	ctx, cancel := context.WithTimeout(context.Background(), psTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ps", "-axo", "pid=,args=").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes with ps: %w", err)
	}
	return parsePS(out), nil
}

func cmdlineFromPS(pid int) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), psTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ps", "-o", "args=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return "", fmt.Errorf("failed to read command line of %d: %w", pid, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// parsePS parses `ps -o pid=,args=` output.
func parsePS(out []byte) []Process {
	var procs []Process
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		pidField, args, found := strings.Cut(line, " ")
		if !found {
			continue
		}
		pid, err := strconv.Atoi(pidField)
		if err != nil {
			continue
		}
		args = strings.TrimSpace(args)
		if args == "" {
			continue
		}
		procs = append(procs, Process{PID: pid, Cmdline: args})
	}

	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
	return procs
}
