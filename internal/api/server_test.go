package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/botlauncher/internal/api/models"
	"github.com/smazurov/botlauncher/internal/events"
	"github.com/smazurov/botlauncher/internal/process"
)

// mockController is a test implementation of Controller.
type mockController struct {
	logPath    string
	status     *process.StatusReport
	restart    *process.RestartResult
	err        error
	restartCtx chan context.Context
}

func (m *mockController) Name() string    { return "Telegram bot" }
func (m *mockController) LogPath() string { return m.logPath }

func (m *mockController) Status(_ context.Context) (*process.StatusReport, error) {
	return m.status, m.err
}

func (m *mockController) Restart(ctx context.Context) (*process.RestartResult, error) {
	if m.restartCtx != nil {
		m.restartCtx <- ctx
	}
	return m.restart, m.err
}

func newTestServer(t *testing.T, ctl *mockController, opts *Options) *httptest.Server {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	opts.Controller = ctl
	ts := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &mockController{}, nil)

	var body models.HealthData
	if code := getJSON(t, ts.URL+"/api/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestBotStatus(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctl := &mockController{status: &process.StatusReport{
		Process: process.ManagedProcess{
			Command:   "python run_telegram_bot.py",
			PID:       3310,
			LogPath:   "telegram_bot.log",
			Status:    process.StatusRunning,
			StartedAt: started,
		},
		Strays: []process.Stray{{PID: 4000, Cmdline: "python run_telegram_bot.py"}},
	}}
	ts := newTestServer(t, ctl, nil)

	var body models.BotStatusData
	if code := getJSON(t, ts.URL+"/api/bot/status", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Name != "Telegram bot" || body.Status != "running" || body.PID != 3310 {
		t.Errorf("body = %+v", body)
	}
	if body.StartedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("started_at = %q", body.StartedAt)
	}
	if len(body.Strays) != 1 || body.Strays[0].PID != 4000 {
		t.Errorf("strays = %+v", body.Strays)
	}
}

func TestBotStatusError(t *testing.T) {
	ts := newTestServer(t, &mockController{err: errors.New("scan failed")}, nil)

	if code := getJSON(t, ts.URL+"/api/bot/status", nil); code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", code)
	}
}

func TestRestart(t *testing.T) {
	ctl := &mockController{restart: &process.RestartResult{
		Terminated: &process.TerminateReport{
			Matched:    []int{3310, 3311},
			Terminated: []int{3310},
			Failed:     []*process.TerminationError{{PID: 3311, Signal: "SIGTERM", Cause: errors.New("operation not permitted")}},
		},
		Process: &process.ManagedProcess{PID: 3400, LaunchID: "launch-1"},
	}, restartCtx: make(chan context.Context, 1)}
	ts := newTestServer(t, ctl, nil)

	resp, err := http.Post(ts.URL+"/api/bot/restart", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body models.RestartData
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.PID != 3400 || body.LaunchID != "launch-1" || body.Terminated != 1 {
		t.Errorf("body = %+v", body)
	}
	if len(body.Failed) != 1 || !strings.Contains(body.Failed[0], "3311") {
		t.Errorf("failed = %v", body.Failed)
	}
	if ctx := <-ctl.restartCtx; ctx.Done() != nil {
		t.Error("restart should not be bound to the request lifetime")
	}
}

func TestRestartFailure(t *testing.T) {
	ctl := &mockController{err: &process.LaunchError{Code: process.ErrCodeNotExecutable, Message: "cannot execute"}}
	ts := newTestServer(t, ctl, nil)

	resp, err := http.Post(ts.URL+"/api/bot/restart", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestBotLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, &mockController{logPath: path}, nil)

	var body models.LogsData
	if code := getJSON(t, ts.URL+"/api/bot/logs?lines=2", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if strings.Join(body.Lines, ",") != "b,c" {
		t.Errorf("lines = %v", body.Lines)
	}

	if code := getJSON(t, ts.URL+"/api/bot/logs?lines=0", nil); code != http.StatusUnprocessableEntity {
		t.Errorf("lines=0 status = %d, want 422", code)
	}
}

func TestBotLogsMissing(t *testing.T) {
	ctl := &mockController{logPath: filepath.Join(t.TempDir(), "missing.log")}
	ts := newTestServer(t, ctl, nil)

	if code := getJSON(t, ts.URL+"/api/bot/logs", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, &mockController{status: &process.StatusReport{}}, &Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health needs no auth", "/api/health", "", http.StatusOK},
		{"missing credentials", "/api/bot/status", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/bot/status", "Bearer token", http.StatusUnauthorized},
		{"wrong password", "/api/bot/status", basic("admin", "nope"), http.StatusUnauthorized},
		{"valid", "/api/bot/status", basic("admin", "secret"), http.StatusOK},
		{"query fallback", "/api/bot/status?auth=" + base64.StdEncoding.EncodeToString([]byte("admin:secret")), "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("Expected WWW-Authenticate header")
			}
		})
	}
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestMetricsHandler(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "botlauncher_bot_pid 42\n")
	})
	ts := newTestServer(t, &mockController{}, &Options{
		AuthUsername:   "admin",
		AuthPassword:   "secret",
		MetricsHandler: metrics,
	})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "botlauncher_bot_pid 42") {
		t.Errorf("status = %d body = %q", resp.StatusCode, body)
	}
}

func TestEventStream(t *testing.T) {
	bus := events.New()
	ts := newTestServer(t, &mockController{}, &Options{EventBus: bus})

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	// Headers arrive with the first event, and the handler subscribes only
	// once it runs, so publish until the client sees one
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				bus.Publish(events.ProcessLaunchedEvent{PID: 4821, LaunchID: "launch-1"})
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: process-launched" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			if !strings.Contains(line, `"pid":4821`) {
				t.Errorf("data = %q", line)
			}
			return
		}
	}
	t.Fatal("no process-launched event received")
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := &lineWriter{send: func(l string) error {
		lines = append(lines, l)
		return nil
	}}

	w.Write([]byte("first\r\nsec"))
	w.Write([]byte("ond\npartial"))

	if strings.Join(lines, "|") != "first|second" {
		t.Errorf("lines = %q", lines)
	}

	failing := &lineWriter{send: func(string) error { return errors.New("closed") }}
	if _, err := failing.Write([]byte("x\n")); err == nil {
		t.Error("Expected send error to propagate")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8090", true},
		{"[::1]:8090", true},
		{"localhost:8090", true},
		{":8090", false},
		{"0.0.0.0:8090", false},
		{"192.168.1.20:8090", false},
		{"bot.example.com:8090", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := isLoopbackAddr(tt.addr); got != tt.want {
				t.Errorf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestWarnIfExposed(t *testing.T) {
	tests := []struct {
		name     string
		password string
		addr     string
		wantWarn bool
	}{
		{"open on all interfaces", "", ":8090", true},
		{"open on loopback", "", "127.0.0.1:8090", false},
		{"password on all interfaces", "s3cret", ":8090", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs strings.Builder
			srv := NewServer(&Options{
				AuthUsername: "admin",
				AuthPassword: tt.password,
				Controller:   &mockController{},
				Logger:       slog.New(slog.NewTextHandler(&logs, nil)),
			})

			srv.warnIfExposed(tt.addr)
			if got := strings.Contains(logs.String(), "level=WARN"); got != tt.wantWarn {
				t.Errorf("warning logged = %v, want %v: %s", got, tt.wantWarn, logs.String())
			}
		})
	}
}
