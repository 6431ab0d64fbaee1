package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/botlauncher/internal/logging"
	"github.com/smazurov/botlauncher/internal/updater"
)

// selfUpdater is the part of updater.Updater the command drives.
type selfUpdater interface {
	Enabled() bool
	DisabledReason() string
	BackupVersion() string
	CheckForUpdate(ctx context.Context) (*updater.UpdateInfo, error)
	ApplyUpdate(ctx context.Context) (*updater.UpdateInfo, error)
	Rollback(ctx context.Context) error
}

// CreateSelfUpdateCmd creates the self-update command.
func CreateSelfUpdateCmd() *cobra.Command {
	var (
		check      bool
		rollback   bool
		prerelease bool
		repository string
	)

	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Update botlauncher to the latest release",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			logger := logging.GetLogger("updater")
			u, err := updater.New(updater.Options{
				Repository: repository,
				Prerelease: prerelease,
			}, logger)
			if err != nil {
				logger.Error("Failed to initialize updater", "error", err)
				os.Exit(1)
			}

			if err := runSelfUpdate(cmd.Context(), u, cmd.OutOrStdout(), check, rollback); err != nil {
				logger.Error("Self-update failed", "error", err)
				os.Exit(1)
			}
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether an update is available")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the binary replaced by the last update")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "Include prereleases")
	cmd.Flags().StringVar(&repository, "repository", updater.DefaultRepository, "GitHub repository to fetch releases from")
	cmd.MarkFlagsMutuallyExclusive("check", "rollback")
	return cmd
}

func runSelfUpdate(ctx context.Context, u selfUpdater, out io.Writer, check, rollback bool) error {
	if !u.Enabled() {
		return fmt.Errorf("self-update disabled: %s", u.DisabledReason())
	}

	switch {
	case rollback:
		prev := u.BackupVersion()
		if err := u.Rollback(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "Rolled back to %s\n", prev)
		return nil

	case check:
		info, err := u.CheckForUpdate(ctx)
		if err != nil {
			return err
		}
		if info.UpdateAvailable {
			fmt.Fprintf(out, "Update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if info.ReleaseURL != "" {
				fmt.Fprintf(out, "  %s\n", info.ReleaseURL)
			}
		} else {
			fmt.Fprintf(out, "Up to date (%s)\n", info.CurrentVersion)
		}
		return nil
	}

	info, err := u.ApplyUpdate(ctx)
	if updater.HasCode(err, updater.ErrCodeNoUpdate) {
		fmt.Fprintf(out, "Up to date (%s)\n", info.CurrentVersion)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated %s -> %s\n", info.CurrentVersion, info.LatestVersion)
	return nil
}
