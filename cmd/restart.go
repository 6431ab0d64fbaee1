package cmd

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/smazurov/botlauncher/internal/config"
	"github.com/smazurov/botlauncher/internal/logging"
	"github.com/smazurov/botlauncher/internal/metrics"
	"github.com/smazurov/botlauncher/internal/metrics/exporters"
	"github.com/smazurov/botlauncher/internal/process"
)

// RunRestart performs one terminate-launch-report cycle and writes the
// metrics textfile when one is configured.
func RunRestart(ctx context.Context, opts *config.Options, out io.Writer) error {
	logger := logging.GetLogger("main")

	sup, closeFn, err := NewSupervisor(ctx, opts, nil, process.WithReportWriter(out))
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		return err
	}
	defer closeFn()

	rec := metrics.NewRecorder()
	start := time.Now()
	result, err := sup.Restart(ctx)
	recordRestart(rec, result, err, time.Since(start))

	if writeErr := exporters.WriteTextfile(opts.MetricsTextfile, rec.Registry()); writeErr != nil {
		logger.Warn("Failed to write metrics textfile", "path", opts.MetricsTextfile, "error", writeErr)
	}
	return err
}

// recordRestart feeds a restart outcome into rec. Events are not used here
// because the process may exit before asynchronous delivery completes.
func recordRestart(rec *metrics.Recorder, result *process.RestartResult, err error, elapsed time.Duration) {
	if result != nil && result.Terminated != nil {
		report := result.Terminated
		for range report.Terminated {
			rec.RecordTermination(metrics.ResultTerminated)
		}
		for range report.Killed {
			rec.RecordTermination(metrics.ResultKilled)
		}
		for range report.Failed {
			rec.RecordTermination(metrics.ResultFailed)
		}
		if report.Found() {
			rec.ObserveTermination(elapsed)
		}
	}

	if err != nil {
		var lerr *process.LaunchError
		if errors.As(err, &lerr) {
			rec.RecordLaunchFailure(lerr.Code)
		}
		return
	}
	if result != nil && result.Process != nil {
		rec.RecordLaunch(result.Process.PID, result.Process.StartedAt)
	}
}
