// Package pidfile stores the PID of the launched bot in a well-known file.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Record is the content of a pid file: the PID and, when known, the command
// line the process was launched with.
type Record struct {
	PID     int
	Cmdline string
}

// Read returns the PID recorded at path.
// A missing file yields an error that satisfies errors.Is(err, os.ErrNotExist).
func Read(path string) (int, error) {
	rec, err := ReadRecord(path)
	return rec.PID, err
}

// ReadRecord returns the PID and command line recorded at path. Files
// holding only a PID, as written by other tools, leave Cmdline empty.
func ReadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}

	first, rest, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return Record{}, fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	if pid <= 0 {
		return Record{}, fmt.Errorf("invalid pid file %s: non-positive pid %d", path, pid)
	}
	return Record{PID: pid, Cmdline: NormalizeCmdline(rest)}, nil
}

// Write records pid at path.
func Write(path string, pid int) error {
	return WriteRecord(path, Record{PID: pid})
}

// WriteRecord stores rec at path as the PID on the first line and the
// command line, whitespace-normalized, on the second. The file is replaced atomically so a
// concurrent reader never observes a partial write.
func WriteRecord(path string, rec Record) error {
	if rec.PID <= 0 {
		return fmt.Errorf("refusing to write non-positive pid %d", rec.PID)
	}
	content := strconv.Itoa(rec.PID) + "\n"
	if cmdline := NormalizeCmdline(rec.Cmdline); cmdline != "" {
		content += cmdline + "\n"
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create pid file directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp pid file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod pid file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close pid file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to install pid file: %w", err)
	}
	return nil
}

// NormalizeCmdline collapses every run of whitespace, newlines included,
// into one space so recorded and live command lines compare equal.
func NormalizeCmdline(cmdline string) string {
	return strings.Join(strings.Fields(cmdline), " ")
}

// Remove deletes the pid file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
