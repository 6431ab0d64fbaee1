package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/botlauncher/internal/process"
)

func TestRunStatusNotRunning(t *testing.T) {
	opts := testOptions(t)

	var out bytes.Buffer
	if err := runStatus(t.Context(), opts, &out, false); err != nil {
		t.Fatalf("runStatus() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "Telegram bot: not_running\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunStatusJSON(t *testing.T) {
	opts := testOptions(t)
	killLaunched(t, opts)

	if err := RunRestart(t.Context(), opts, &bytes.Buffer{}); err != nil {
		t.Fatalf("RunRestart() error = %v", err)
	}

	var out bytes.Buffer
	if err := runStatus(t.Context(), opts, &out, true); err != nil {
		t.Fatalf("runStatus() error = %v", err)
	}

	var got struct {
		Name    string                 `json:"name"`
		Process process.ManagedProcess `json:"process"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out.String(), err)
	}
	if got.Name != "Telegram bot" {
		t.Errorf("name = %q", got.Name)
	}
	if got.Process.Status != process.StatusRunning {
		t.Errorf("status = %q, want running", got.Process.Status)
	}
	if got.Process.PID == 0 {
		t.Error("Expected PID in status")
	}
}

func TestWriteStatus(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	writeStatus(&out, statusOutput{
		Name: "Telegram bot",
		StatusReport: &process.StatusReport{
			Process: process.ManagedProcess{
				Command:   "python run_telegram_bot.py",
				PID:       3310,
				LogPath:   "telegram_bot.log",
				Status:    process.StatusRunning,
				StartedAt: started,
			},
			Strays: []process.Stray{{PID: 4000, Cmdline: "python run_telegram_bot.py"}},
		},
		Unit:      "telegram-bot.service",
		UnitState: "inactive",
	})

	want := []string{
		"Telegram bot: running (PID 3310)",
		"  Command: python run_telegram_bot.py",
		"  Log:     telegram_bot.log",
		"  Started: 2026-03-01T12:00:00Z",
		"  Unit:    telegram-bot.service (inactive)",
		"  Untracked instance: PID 4000 python run_telegram_bot.py",
	}
	if got := strings.TrimRight(out.String(), "\n"); got != strings.Join(want, "\n") {
		t.Errorf("output =\n%s\nwant\n%s", got, strings.Join(want, "\n"))
	}
}
