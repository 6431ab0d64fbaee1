package exporters

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/botlauncher/internal/metrics"
)

func TestWriteTextfile(t *testing.T) {
	r := metrics.NewRecorder()
	r.RecordLaunch(3311, time.Now())
	r.RecordTermination(metrics.ResultTerminated)

	path := filepath.Join(t.TempDir(), "textfile", "botlauncher.prom")
	if err := WriteTextfile(path, r.Registry()); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		"botlauncher_bot_pid 3311",
		`botlauncher_launches_total{result="success"} 1`,
		`botlauncher_terminations_total{result="terminated"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in textfile, got:\n%s", want, body)
		}
	}
}

func TestWriteTextfileEmptyPath(t *testing.T) {
	if err := WriteTextfile("", metrics.NewRecorder().Registry()); err != nil {
		t.Errorf("expected no-op for empty path, got %v", err)
	}
}
