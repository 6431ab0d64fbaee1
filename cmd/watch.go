package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/botlauncher/internal/api"
	"github.com/smazurov/botlauncher/internal/config"
	"github.com/smazurov/botlauncher/internal/events"
	"github.com/smazurov/botlauncher/internal/logging"
	"github.com/smazurov/botlauncher/internal/metrics"
	"github.com/smazurov/botlauncher/internal/metrics/exporters"
	"github.com/smazurov/botlauncher/internal/process"
)

var _ api.Controller = (*watcher)(nil)

// textfileInterval is how often watch mode refreshes the metrics textfile.
const textfileInterval = 15 * time.Second

// CreateWatchCmd creates the watch command.
func CreateWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Launch the bot and relaunch it when the config file changes",
		Long: `Runs in the foreground, suitable for a systemd Type=notify unit. ` +
			`Launches the bot, reports readiness, then relaunches it whenever ` +
			`a config file change alters how the bot is started. ` +
			`With --server-listen set, also serves the control API and /metrics.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := &watcher{
				opts:   *opts,
				load:   optionsLoader(*opts, cmd.Root()),
				out:    cmd.OutOrStdout(),
				logger: logging.GetLogger("watch"),
			}
			if err := w.run(ctx); err != nil {
				w.logger.Error("Watch failed", "error", err)
				os.Exit(1)
			}
		}),
	}
}

// optionsLoader reloads options from the file over base, keeping values
// given on the command line.
func optionsLoader(base config.Options, root *cobra.Command) func(string) (config.Options, error) {
	return func(path string) (config.Options, error) {
		next := base
		next.Config = path
		if err := config.LoadConfig(&next, root); err != nil {
			return config.Options{}, err
		}
		return next, nil
	}
}

// watcher keeps one bot instance running for the lifetime of the command
// and implements api.Controller.
type watcher struct {
	load   func(string) (config.Options, error)
	out    io.Writer
	logger *slog.Logger

	bus      *events.Bus
	recorder *metrics.Recorder
	current  atomic.Int64

	// mu serialises relaunches from config reloads and the API
	mu   sync.Mutex
	opts config.Options
	cfg  process.Config
}

func (w *watcher) run(ctx context.Context) error {
	w.bus = events.New()
	defer w.bus.Close()
	w.recorder = metrics.NewRecorder()
	defer w.recorder.Attach(w.bus)()
	defer w.bus.Subscribe(func(e events.ProcessExitedEvent) {
		if w.current.CompareAndSwap(int64(e.PID), 0) {
			w.logger.Warn("Bot exited", "pid", e.PID, "exit_code", e.ExitCode)
		}
	})()

	if err := w.recorder.RegisterBotProcess(w.botPID); err != nil {
		w.logger.Warn("Failed to register bot process metrics", "error", err)
	}

	if _, err := w.Restart(ctx); err != nil {
		return err
	}

	if w.opts.ServerListen != "" {
		stopServer := w.serve(w.opts)
		defer stopServer()
	}

	reloads := make(chan config.Options, 1)
	cw := config.NewConfigWatcher(w.opts.Config, w.load, logging.GetLogger("config"))
	cw.OnReload(func(next config.Options) {
		// Keep only the newest snapshot
		select {
		case <-reloads:
		default:
		}
		reloads <- next
	})
	if err := cw.Start(ctx); err != nil {
		w.logger.Warn("Config file will not be watched", "path", w.opts.Config, "error", err)
	} else {
		defer cw.Stop()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	w.notify(daemon.SdNotifyReady)
	defer w.notify(daemon.SdNotifyStopping)

	ticker := time.NewTicker(textfileInterval)
	defer ticker.Stop()
	defer w.writeTextfile()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping watch, bot left running", "pid", w.current.Load())
			return nil

		case <-hup:
			w.logger.Info("SIGHUP received, reloading config")
			if !cw.Reload() {
				w.logger.Warn("Config reload failed, keeping current settings")
			}

		case next := <-reloads:
			logging.Initialize(LoggingConfig(&next))
			w.reload(ctx, next)

		case <-ticker.C:
			w.writeTextfile()
		}
	}
}

// reload relaunches the bot when next changes how it is started.
func (w *watcher) reload(ctx context.Context, next config.Options) {
	nextCfg, err := SupervisorConfig(&next)
	if err != nil {
		w.logger.Warn("Ignoring invalid config", "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if reflect.DeepEqual(w.cfg, nextCfg) {
		w.logger.Debug("Config changed without affecting the bot")
		return
	}

	w.notify(daemon.SdNotifyReloading)
	defer w.notify(daemon.SdNotifyReady)

	if _, cfg, err := w.relaunch(ctx, next); err != nil {
		w.logger.Error("Relaunch failed, keeping previous config", "error", err)
	} else {
		w.opts = next
		w.cfg = cfg
	}
}

// Restart relaunches the bot with the current options.
func (w *watcher) Restart(ctx context.Context) (*process.RestartResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	result, cfg, err := w.relaunch(ctx, w.opts)
	if err != nil {
		return nil, err
	}
	w.cfg = cfg
	return result, nil
}

// Status reports the bot's state under the current options.
func (w *watcher) Status(ctx context.Context) (*process.StatusReport, error) {
	w.mu.Lock()
	opts := w.opts
	w.mu.Unlock()

	sup, closeFn, err := NewSupervisor(ctx, &opts, nil)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return sup.Status(ctx)
}

// Name returns the bot's label.
func (w *watcher) Name() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.Name
}

// LogPath returns the bot's current log file.
func (w *watcher) LogPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.LogPath
}

// relaunch runs one restart cycle with opts. The bot launched by the
// previous cycle is always replaced, whatever opts now say about its PID
// file or command. The caller holds mu.
func (w *watcher) relaunch(ctx context.Context, opts config.Options) (*process.RestartResult, process.Config, error) {
	sup, closeFn, err := NewSupervisor(ctx, &opts, w.bus,
		process.WithReportWriter(w.out),
		process.WithPriorPIDs(int(w.current.Load())),
	)
	if err != nil {
		return nil, process.Config{}, err
	}
	defer closeFn()

	start := time.Now()
	result, err := sup.Restart(ctx)
	if result != nil && result.Terminated.Found() {
		w.recorder.ObserveTermination(time.Since(start))
	}
	if err != nil {
		return nil, process.Config{}, err
	}

	w.current.Store(int64(result.Process.PID))
	w.notify(fmt.Sprintf("STATUS=%s running with PID %d", sup.Config().Name, result.Process.PID))
	w.writeTextfileWith(opts.MetricsTextfile)
	return result, sup.Config(), nil
}

func (w *watcher) botPID() (int, error) {
	pid := w.current.Load()
	if pid == 0 {
		return 0, errors.New("bot not running")
	}
	return int(pid), nil
}

// serve starts the control API and returns a function stopping it.
func (w *watcher) serve(opts config.Options) func() {
	server := api.NewServer(&api.Options{
		AuthUsername:   opts.ServerUsername,
		AuthPassword:   opts.ServerPassword,
		Controller:     w,
		EventBus:       w.bus,
		MetricsHandler: exporters.HTTPHandler(w.recorder.Registry(), w.logger),
	})

	go func() {
		if err := server.Start(opts.ServerListen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error("API server failed", "addr", opts.ServerListen, "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			w.logger.Warn("Error stopping API server", "error", err)
		}
	}
}

func (w *watcher) writeTextfile() {
	w.mu.Lock()
	path := w.opts.MetricsTextfile
	w.mu.Unlock()
	w.writeTextfileWith(path)
}

func (w *watcher) writeTextfileWith(path string) {
	if err := exporters.WriteTextfile(path, w.recorder.Registry()); err != nil {
		w.logger.Warn("Failed to write metrics textfile", "path", path, "error", err)
	}
}

func (w *watcher) notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		w.logger.Debug("sd_notify failed", "state", state, "error", err)
	}
}
