package process

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/smazurov/botlauncher/internal/procscan"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMarker returns a string unique to this test run, used to tag fixture
// command lines so scans never match unrelated processes.
func newMarker() string {
	return "bltest-" + uuid.NewString()[:8]
}

// markerCommand builds a shell command that sleeps and carries marker in its
// command line. The trailing no-op keeps sh from exec'ing sleep directly.
func markerCommand(marker, script string) string {
	return `sh -c "` + script + `; : ` + marker + `"`
}

// testConfig returns a config with short timeouts and files in a temp dir.
func testConfig(t *testing.T, marker string) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Name:               DefaultName,
		Command:            markerCommand(marker, "sleep 30"),
		MatchPattern:       marker,
		LogPath:            filepath.Join(dir, "bot.log"),
		PidFile:            filepath.Join(dir, "bot.pid"),
		GracefulTimeout:    time.Second,
		KillTimeout:        time.Second,
		PollInterval:       10 * time.Millisecond,
		ConfirmTermination: true,
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestSupervisor(t *testing.T, cfg Config, opts ...Option) (*Supervisor, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	opts = append([]Option{WithReportWriter(out)}, opts...)
	return New(cfg, testLogger(), opts...), out
}

// startPrior starts a process outside the supervisor, as the old shell
// script would have, and reaps it in the background.
func startPrior(t *testing.T, marker, script string) int {
	t.Helper()
	cmd := exec.Command("sh", "-c", script+"; : "+marker)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start prior instance: %v", err)
	}
	go func() { _ = cmd.Wait() }()
	pid := cmd.Process.Pid
	t.Cleanup(func() { killGroup(pid) })
	return pid
}

func killGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
	_ = unix.Kill(pid, unix.SIGKILL)
}

// cleanupLaunched kills a process started by the supervisor when the test ends.
func cleanupLaunched(t *testing.T, pid int) {
	t.Helper()
	t.Cleanup(func() { killGroup(pid) })
}

func waitGone(t *testing.T, pid int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !isAlive(pid) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("process %d still alive after %v", pid, timeout)
}

// waitForFile polls path until it contains want.
func waitForFile(t *testing.T, path, want string, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var data []byte
	for time.Now().Before(deadline) {
		data, _ = os.ReadFile(path)
		if strings.Contains(string(data), want) {
			return string(data)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %q in %s, got %q", want, path, data)
	return ""
}

// fakeFinder returns fixed scan results and reads real command lines.
type fakeFinder struct {
	procs []procscan.Process
}

func (f *fakeFinder) Find(_ string, _ ...int) ([]procscan.Process, error) {
	return f.procs, nil
}

func (f *fakeFinder) Cmdline(pid int) (string, error) {
	return procscan.New(testLogger()).Cmdline(pid)
}
