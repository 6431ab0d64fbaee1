package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/botlauncher/internal/config"
	"github.com/smazurov/botlauncher/internal/logging"
)

// CreateStopCmd creates the stop command.
func CreateStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Terminate running bot instances without relaunching",
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			if err := runStop(cmd.Context(), opts, cmd.OutOrStdout()); err != nil {
				logging.GetLogger("main").Error("Stop failed", "error", err)
				os.Exit(1)
			}
		}),
	}
}

func runStop(ctx context.Context, opts *config.Options, out io.Writer) error {
	sup, closeFn, err := NewSupervisor(ctx, opts, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	report := sup.TerminatePriorInstances(ctx, sup.MatchPattern())
	fmt.Fprintf(out, "Stopped %d %s instance(s)\n", report.Stopped(), sup.Config().Name)

	if n := len(report.Failed); n > 0 {
		return fmt.Errorf("%d instance(s) could not be stopped: %w", n, report.Failed[0])
	}
	return nil
}
