package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"slices"
	"testing"
	"time"

	"github.com/smazurov/botlauncher/internal/events"
	"github.com/smazurov/botlauncher/internal/pidfile"
	"github.com/smazurov/botlauncher/internal/procscan"
)

func TestTerminateNoPriorInstance(t *testing.T) {
	cfg := testConfig(t, newMarker())
	sup, _ := newTestSupervisor(t, cfg)

	report := sup.TerminatePriorInstances(context.Background(), cfg.MatchPattern)
	if report.Found() {
		t.Errorf("expected nothing found, got %+v", report)
	}
	if len(report.Failed) != 0 {
		t.Errorf("expected no failures, got %v", report.Failed)
	}

	// Running it again is equally harmless
	report = sup.TerminatePriorInstances(context.Background(), cfg.MatchPattern)
	if report.Found() || len(report.Failed) != 0 {
		t.Errorf("expected empty second report, got %+v", report)
	}
}

func TestTerminateScannedInstance(t *testing.T) {
	marker := newMarker()
	cfg := testConfig(t, marker)
	prior := startPrior(t, marker, "sleep 30")
	sup, _ := newTestSupervisor(t, cfg)

	report := sup.TerminatePriorInstances(context.Background(), marker)

	if !slices.Equal(report.Matched, []int{prior}) {
		t.Fatalf("expected match %d, got %v", prior, report.Matched)
	}
	if !slices.Contains(report.Terminated, prior) {
		t.Errorf("expected %d terminated, got %+v", prior, report)
	}
	if len(report.Killed) != 0 || len(report.Failed) != 0 {
		t.Errorf("expected graceful termination, got %+v", report)
	}
	waitGone(t, prior, time.Second)
}

func TestTerminateMultipleInstances(t *testing.T) {
	marker := newMarker()
	cfg := testConfig(t, marker)
	first := startPrior(t, marker, "sleep 30")
	second := startPrior(t, marker, "sleep 30")
	sup, _ := newTestSupervisor(t, cfg)

	report := sup.TerminatePriorInstances(context.Background(), marker)

	want := []int{first, second}
	slices.Sort(want)
	if !slices.Equal(report.Matched, want) {
		t.Fatalf("expected matches %v, got %v", want, report.Matched)
	}
	if report.Stopped() != 2 {
		t.Errorf("expected 2 stopped, got %+v", report)
	}
	waitGone(t, first, time.Second)
	waitGone(t, second, time.Second)
}

func TestTerminateEscalatesToKill(t *testing.T) {
	marker := newMarker()
	cfg := testConfig(t, marker)
	cfg.GracefulTimeout = 200 * time.Millisecond
	prior := startPrior(t, marker, "trap '' TERM; sleep 30")
	// Let the shell install its trap
	time.Sleep(200 * time.Millisecond)
	sup, _ := newTestSupervisor(t, cfg)

	start := time.Now()
	report := sup.TerminatePriorInstances(context.Background(), marker)

	if !slices.Equal(report.Killed, []int{prior}) {
		t.Fatalf("expected %d killed, got %+v", prior, report)
	}
	if len(report.Failed) != 0 {
		t.Errorf("expected no failures, got %v", report.Failed)
	}
	if elapsed := time.Since(start); elapsed < cfg.GracefulTimeout {
		t.Errorf("escalated after %v, before graceful timeout %v", elapsed, cfg.GracefulTimeout)
	}
	waitGone(t, prior, time.Second)
}

func TestTerminateFireAndForget(t *testing.T) {
	marker := newMarker()
	cfg := testConfig(t, marker)
	cfg.ConfirmTermination = false
	prior := startPrior(t, marker, "trap '' TERM; sleep 30")
	time.Sleep(200 * time.Millisecond)
	sup, _ := newTestSupervisor(t, cfg)

	start := time.Now()
	report := sup.TerminatePriorInstances(context.Background(), marker)

	if !slices.Equal(report.Terminated, []int{prior}) {
		t.Fatalf("expected %d signalled, got %+v", prior, report)
	}
	if len(report.Killed) != 0 {
		t.Errorf("expected no escalation without confirmation, got %v", report.Killed)
	}
	if elapsed := time.Since(start); elapsed > cfg.GracefulTimeout {
		t.Errorf("fire-and-forget waited %v", elapsed)
	}
	// The instance ignores SIGTERM, so it is still running.
	if !isAlive(prior) {
		t.Error("expected TERM-ignoring instance to survive")
	}
}

func TestTerminateContextCancelled(t *testing.T) {
	marker := newMarker()
	cfg := testConfig(t, marker)
	cfg.GracefulTimeout = 10 * time.Second
	prior := startPrior(t, marker, "trap '' TERM; sleep 30")
	time.Sleep(200 * time.Millisecond)
	sup, _ := newTestSupervisor(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	report := sup.TerminatePriorInstances(ctx, marker)

	if len(report.Failed) != 1 || report.Failed[0].PID != prior {
		t.Fatalf("expected %d to fail, got %+v", prior, report)
	}
	if !errors.Is(report.Failed[0], context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", report.Failed[0])
	}
}

func TestTerminatePidFileInstance(t *testing.T) {
	marker := newMarker()
	cfg := testConfig(t, marker)
	prior := startPrior(t, marker, "sleep 30")
	if err := pidfile.Write(cfg.PidFile, prior); err != nil {
		t.Fatal(err)
	}
	// The scan finds nothing, so the PID file is the only source
	sup, _ := newTestSupervisor(t, cfg, WithFinder(&fakeFinder{}))

	report := sup.TerminatePriorInstances(context.Background(), marker)

	if !slices.Equal(report.Terminated, []int{prior}) {
		t.Fatalf("expected %d terminated via PID file, got %+v", prior, report)
	}
	waitGone(t, prior, time.Second)
	if _, err := os.Stat(cfg.PidFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected PID file removed, stat err=%v", err)
	}
}

func TestTerminateIgnoresRecycledPid(t *testing.T) {
	marker := newMarker()
	cfg := testConfig(t, marker)

	// An unrelated process now owns the recorded PID
	other := exec.Command("sleep", "30")
	if err := other.Start(); err != nil {
		t.Fatal(err)
	}
	go func() { _ = other.Wait() }()
	t.Cleanup(func() { _ = other.Process.Kill() })
	if err := pidfile.Write(cfg.PidFile, other.Process.Pid); err != nil {
		t.Fatal(err)
	}
	sup, _ := newTestSupervisor(t, cfg)

	report := sup.TerminatePriorInstances(context.Background(), marker)

	if report.Found() {
		t.Errorf("expected unrelated PID to be ignored, got %+v", report)
	}
	if !isAlive(other.Process.Pid) {
		t.Error("unrelated process was signalled")
	}
	if _, err := os.Stat(cfg.PidFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected stale PID file removed, stat err=%v", err)
	}
}

func TestTerminateExcludesSelfAndParent(t *testing.T) {
	cfg := testConfig(t, newMarker())
	finder := &fakeFinder{procs: []procscan.Process{
		{PID: os.Getpid(), Cmdline: "botlauncher " + cfg.MatchPattern},
		{PID: os.Getppid(), Cmdline: "sh -c botlauncher " + cfg.MatchPattern},
	}}
	if err := pidfile.Write(cfg.PidFile, os.Getpid()); err != nil {
		t.Fatal(err)
	}
	sup, _ := newTestSupervisor(t, cfg, WithFinder(finder))

	report := sup.TerminatePriorInstances(context.Background(), cfg.MatchPattern)

	if report.Found() {
		t.Errorf("launcher must never target itself or its parent, got %+v", report)
	}
}

func TestTerminateVanishedProcess(t *testing.T) {
	cfg := testConfig(t, newMarker())

	// A reaped child's PID is free, so signalling it fails with ESRCH
	gone := exec.Command("true")
	if err := gone.Run(); err != nil {
		t.Fatal(err)
	}
	pid := gone.Process.Pid
	finder := &fakeFinder{procs: []procscan.Process{{PID: pid, Cmdline: "true " + cfg.MatchPattern}}}
	sup, _ := newTestSupervisor(t, cfg, WithFinder(finder))

	report := sup.TerminatePriorInstances(context.Background(), cfg.MatchPattern)

	if !slices.Equal(report.Terminated, []int{pid}) {
		t.Errorf("expected vanished process counted as terminated, got %+v", report)
	}
	if len(report.Failed) != 0 {
		t.Errorf("expected no failures, got %v", report.Failed)
	}
}

type fakeUnits struct {
	stopped []string
	err     error
}

func (f *fakeUnits) StopUnit(_ context.Context, name string) error {
	f.stopped = append(f.stopped, name)
	return f.err
}

func TestTerminateStopsSystemdUnit(t *testing.T) {
	cfg := testConfig(t, newMarker())
	cfg.SystemdUnit = "telegram-bot.service"
	units := &fakeUnits{}
	sup, _ := newTestSupervisor(t, cfg, WithUnitStopper(units))

	report := sup.TerminatePriorInstances(context.Background(), cfg.MatchPattern)

	if !slices.Equal(units.stopped, []string{"telegram-bot.service"}) {
		t.Errorf("expected unit stopped, got %v", units.stopped)
	}
	if !report.UnitStopped || !report.Found() {
		t.Errorf("expected report to record unit stop, got %+v", report)
	}
}

func TestTerminateSystemdUnitFailure(t *testing.T) {
	cfg := testConfig(t, newMarker())
	cfg.SystemdUnit = "telegram-bot.service"
	stopErr := errors.New("unit not loaded")
	sup, _ := newTestSupervisor(t, cfg, WithUnitStopper(&fakeUnits{err: stopErr}))

	report := sup.TerminatePriorInstances(context.Background(), cfg.MatchPattern)

	if report.UnitStopped {
		t.Error("expected unit not stopped")
	}
	if len(report.Failed) != 1 || report.Failed[0].Unit != cfg.SystemdUnit {
		t.Fatalf("expected unit failure, got %+v", report.Failed)
	}
	if !errors.Is(report.Failed[0], stopErr) {
		t.Errorf("expected wrapped cause, got %v", report.Failed[0])
	}
}

func TestTerminatePublishesEvents(t *testing.T) {
	marker := newMarker()
	cfg := testConfig(t, marker)
	prior := startPrior(t, marker, "sleep 30")
	bus := events.New()
	got := make(chan events.PriorInstanceTerminatedEvent, 1)
	bus.Subscribe(func(e events.PriorInstanceTerminatedEvent) { got <- e })
	sup, _ := newTestSupervisor(t, cfg, WithEventBus(bus))

	sup.TerminatePriorInstances(context.Background(), marker)

	select {
	case e := <-got:
		if e.PID != prior || e.Forced || e.Source != "scan" {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for termination event")
	}
}
