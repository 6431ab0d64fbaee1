package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/botlauncher/cmd"
	"github.com/smazurov/botlauncher/internal/config"
	"github.com/smazurov/botlauncher/internal/logging"
)

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Load configuration; flags given on the command line win
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(cmd.LoggingConfig(opts))

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			defer cancel()
			if err := cmd.RunRestart(ctx, opts, os.Stdout); err != nil {
				os.Exit(1)
			}
		})

		hooks.OnStop(cancel)
	})

	root := cli.Root()
	root.Use = "botlauncher"
	root.Short = "Restart the Telegram bot as a detached background process"
	root.AddCommand(
		cmd.CreateStopCmd(),
		cmd.CreateStatusCmd(),
		cmd.CreateLogsCmd(),
		cmd.CreateWatchCmd(),
		cmd.CreateVersionCmd(),
		cmd.CreateSelfUpdateCmd(),
	)

	cli.Run()
}
