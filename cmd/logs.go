package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/botlauncher/internal/config"
	"github.com/smazurov/botlauncher/internal/logfile"
	"github.com/smazurov/botlauncher/internal/logging"
)

// CreateLogsCmd creates the logs command.
func CreateLogsCmd() *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the bot's log file",
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := runLogs(ctx, opts.BotLogPath, cmd.OutOrStdout(), lines, follow); err != nil {
				logging.GetLogger("main").Error("Failed to read log file", "path", opts.BotLogPath, "error", err)
				os.Exit(1)
			}
		}),
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	return cmd
}

func runLogs(ctx context.Context, path string, out io.Writer, lines int, follow bool) error {
	// Taken before the tail so nothing appended in between is skipped
	offset, err := logfile.Size(path)
	if err != nil {
		return err
	}

	tail, err := logfile.Tail(path, lines)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && follow:
	default:
		return err
	}
	for _, line := range tail {
		fmt.Fprintln(out, line)
	}

	if !follow {
		return nil
	}
	return logfile.Follow(ctx, path, offset, out)
}
