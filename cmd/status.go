package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/botlauncher/internal/config"
	"github.com/smazurov/botlauncher/internal/logging"
	"github.com/smazurov/botlauncher/internal/process"
	"github.com/smazurov/botlauncher/internal/systemd"
)

// statusOutput is the JSON form of the status command.
type statusOutput struct {
	Name string `json:"name"`
	*process.StatusReport
	Unit      string `json:"unit,omitempty"`
	UnitState string `json:"unit_state,omitempty"`
}

// CreateStatusCmd creates the status command.
func CreateStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the managed bot process",
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			if err := runStatus(cmd.Context(), opts, cmd.OutOrStdout(), asJSON); err != nil {
				logging.GetLogger("main").Error("Status failed", "error", err)
				os.Exit(1)
			}
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}

func runStatus(ctx context.Context, opts *config.Options, out io.Writer, asJSON bool) error {
	sup, closeFn, err := NewSupervisor(ctx, opts, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := sup.Status(ctx)
	if err != nil {
		return err
	}

	result := statusOutput{
		Name:         sup.Config().Name,
		StatusReport: report,
		Unit:         opts.SystemdUnit,
		UnitState:    unitState(ctx, opts),
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	writeStatus(out, result)
	return nil
}

func unitState(ctx context.Context, opts *config.Options) string {
	if opts.SystemdUnit == "" {
		return ""
	}
	units, err := systemd.NewManager(ctx, opts.SystemdUserBus)
	if err != nil {
		return "unknown"
	}
	defer units.Close()

	state, err := units.UnitState(ctx, opts.SystemdUnit)
	if err != nil {
		return "unknown"
	}
	return state
}

func writeStatus(out io.Writer, s statusOutput) {
	p := s.Process
	if p.PID > 0 {
		fmt.Fprintf(out, "%s: %s (PID %d)\n", s.Name, p.Status, p.PID)
	} else {
		fmt.Fprintf(out, "%s: %s\n", s.Name, p.Status)
	}
	fmt.Fprintf(out, "  Command: %s\n", p.Command)
	fmt.Fprintf(out, "  Log:     %s\n", p.LogPath)
	if !p.StartedAt.IsZero() {
		fmt.Fprintf(out, "  Started: %s\n", p.StartedAt.Format(time.RFC3339))
	}
	if s.Unit != "" {
		fmt.Fprintf(out, "  Unit:    %s (%s)\n", s.Unit, s.UnitState)
	}
	for _, stray := range s.Strays {
		fmt.Fprintf(out, "  Untracked instance: PID %d %s\n", stray.PID, stray.Cmdline)
	}
}
