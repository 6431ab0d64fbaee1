package cmd

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/smazurov/botlauncher/internal/config"
	"github.com/smazurov/botlauncher/internal/pidfile"
)

// testOptions returns options confined to a temp dir. The bot command
// carries a unique marker so scans only ever match this test's children.
func testOptions(t *testing.T) *config.Options {
	t.Helper()
	dir := t.TempDir()
	marker := "botlauncher-cmd-test-" + uuid.NewString()

	return &config.Options{
		Config:                   filepath.Join(dir, "botlauncher.toml"),
		BotName:                  "Telegram bot",
		BotCommand:               `sh -c "sleep 30; : ` + marker + `"`,
		BotMatchPattern:          marker,
		BotLogPath:               filepath.Join(dir, "bot.log"),
		BotPidFile:               filepath.Join(dir, "bot.pid"),
		TerminateConfirm:         true,
		TerminateGracefulTimeout: "1s",
		TerminateKillTimeout:     "1s",
		TerminatePollInterval:    "10ms",
		LoggingLevel:             "info",
		LoggingFormat:            "text",
		LoggingProcess:           "info",
		LoggingUpdater:           "info",
	}
}

// killLaunched kills the process group recorded in the PID file.
func killLaunched(t *testing.T, opts *config.Options) {
	t.Helper()
	t.Cleanup(func() {
		pid, err := pidfile.Read(opts.BotPidFile)
		if err != nil {
			return
		}
		_ = unix.Kill(-pid, unix.SIGKILL)
	})
}
