// Package cmd holds the botlauncher subcommands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/smazurov/botlauncher/internal/config"
	"github.com/smazurov/botlauncher/internal/events"
	"github.com/smazurov/botlauncher/internal/logging"
	"github.com/smazurov/botlauncher/internal/process"
	"github.com/smazurov/botlauncher/internal/systemd"
)

// SupervisorConfig converts CLI options into a supervisor configuration.
func SupervisorConfig(opts *config.Options) (process.Config, error) {
	graceful, err := parseDuration("terminate.graceful_timeout", opts.TerminateGracefulTimeout)
	if err != nil {
		return process.Config{}, err
	}
	kill, err := parseDuration("terminate.kill_timeout", opts.TerminateKillTimeout)
	if err != nil {
		return process.Config{}, err
	}
	poll, err := parseDuration("terminate.poll_interval", opts.TerminatePollInterval)
	if err != nil {
		return process.Config{}, err
	}

	return process.Config{
		Name:               opts.BotName,
		Command:            opts.BotCommand,
		MatchPattern:       opts.BotMatchPattern,
		LogPath:            opts.BotLogPath,
		PidFile:            opts.BotPidFile,
		WorkDir:            opts.BotWorkDir,
		Env:                config.LoadBotEnv(opts.Config),
		GracefulTimeout:    graceful,
		KillTimeout:        kill,
		PollInterval:       poll,
		ConfirmTermination: opts.TerminateConfirm,
		SystemdUnit:        opts.SystemdUnit,
	}, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

// LoggingConfig merges per-module levels from the [logging] table with the
// levels resolved into opts.
func LoggingConfig(opts *config.Options) logging.Config {
	cfg := config.LoadLoggingConfig(opts.Config)
	cfg.Level = opts.LoggingLevel
	cfg.Format = opts.LoggingFormat
	cfg.Modules["process"] = opts.LoggingProcess
	cfg.Modules["updater"] = opts.LoggingUpdater
	return cfg
}

// NewSupervisor builds a Supervisor for opts publishing to bus, which may
// be nil. The returned function releases the systemd connection.
func NewSupervisor(ctx context.Context, opts *config.Options, bus *events.Bus, extra ...process.Option) (*process.Supervisor, func(), error) {
	cfg, err := SupervisorConfig(opts)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.GetLogger("process")
	supOpts := []process.Option{process.WithEventBus(bus)}
	closeFn := func() {}

	if cfg.SystemdUnit != "" {
		units, connErr := systemd.NewManager(ctx, opts.SystemdUserBus)
		if connErr != nil {
			// Scan and PID file still catch copies outside the unit
			logger.Warn("systemd unavailable, unit will not be stopped", "unit", cfg.SystemdUnit, "error", connErr)
		} else {
			supOpts = append(supOpts, process.WithUnitStopper(units))
			closeFn = units.Close
		}
	}

	supOpts = append(supOpts, extra...)
	return process.New(cfg, logger, supOpts...), closeFn, nil
}
