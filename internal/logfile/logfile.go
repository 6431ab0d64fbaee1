// Package logfile manages the bot's combined stdout/stderr log file.
package logfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval catches writes fsnotify may coalesce or miss.
const pollInterval = time.Second

// Open creates or truncates the log file at path for writing.
// Missing parent directories are created.
func Open(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// MaxLineLength caps a line returned by Tail. Longer lines are cut and
// end in a marker giving the number of bytes dropped.
const MaxLineLength = 64 * 1024

// Tail returns the last n lines of the file at path. Memory use is bounded
// by n lines of at most MaxLineLength bytes each, however long the lines in
// the file are.
func Tail(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, n)
	count := 0

	r := bufio.NewReader(f)
	for {
		line, err := readLine(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		ring[count%n] = line
		count++
	}

	if count <= n {
		return ring[:count], nil
	}

	lines := make([]string, 0, n)
	start := count % n
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return lines, nil
}

// readLine returns the next line without its terminator, keeping at most
// MaxLineLength bytes. It returns io.EOF only when no bytes are left.
func readLine(r *bufio.Reader) (string, error) {
	var (
		buf     []byte
		dropped int
		read    bool
	)
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && read {
				break
			}
			return "", err
		}
		read = true
		if room := MaxLineLength - len(buf); room > 0 {
			keep := min(room, len(chunk))
			buf = append(buf, chunk[:keep]...)
			dropped += len(chunk) - keep
		} else {
			dropped += len(chunk)
		}
		if !isPrefix {
			break
		}
	}
	if dropped > 0 {
		return fmt.Sprintf("%s... [%d bytes truncated]", buf, dropped), nil
	}
	return string(buf), nil
}

// Size returns the current size of the file, or 0 if it does not exist.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Follow copies bytes appended to path after offset into w until ctx is done.
// When the file shrinks (a relaunch truncated it) following restarts from
// the beginning.
func Follow(ctx context.Context, path string, offset int64, w io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so removal and re-creation of the file are seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	target := filepath.Clean(path)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	copyNew := func() error {
		next, copyErr := copyFrom(path, offset, w)
		offset = next
		return copyErr
	}

	if err := copyNew(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if err := copyNew(); err != nil {
				return err
			}

		case <-ticker.C:
			if err := copyNew(); err != nil {
				return err
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return watchErr
		}
	}
}

// copyFrom writes the bytes of path after offset to w and returns the new offset.
func copyFrom(path string, offset int64, w io.Writer) (int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return offset, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return offset, err
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}
	n, err := io.Copy(w, f)
	return offset + n, err
}
