package config

// Options for the CLI - flat structure with toml mapping.
// Flag names are the kebab-cased field names (BotLogPath -> --bot-log-path).
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"botlauncher.toml"`

	// Bot process
	BotName         string `help:"Label used in the launch report line" default:"Telegram bot" toml:"bot.name" env:"BOT_NAME"`
	BotCommand      string `help:"Bot command line (shell-like quoting, no shell)" default:"python run_telegram_bot.py" toml:"bot.command" env:"BOT_COMMAND"`
	BotMatchPattern string `help:"Command-line substring identifying prior instances; derived from the bot command when empty" toml:"bot.match_pattern" env:"BOT_MATCH_PATTERN"`
	BotLogPath      string `help:"File receiving the bot's stdout and stderr" default:"telegram_bot.log" toml:"bot.log_path" env:"BOT_LOG_PATH"`
	BotPidFile      string `help:"File recording the bot's PID" default:"telegram_bot.pid" toml:"bot.pid_file" env:"BOT_PID_FILE"`
	BotWorkDir      string `help:"Working directory for the bot" toml:"bot.work_dir" env:"BOT_WORK_DIR"`

	// Termination of prior instances
	TerminateConfirm         bool   `help:"Wait for prior instances to exit before launching" default:"true" toml:"terminate.confirm" env:"TERMINATE_CONFIRM"`
	TerminateGracefulTimeout string `help:"Time allowed after SIGTERM before SIGKILL" default:"5s" toml:"terminate.graceful_timeout" env:"TERMINATE_GRACEFUL_TIMEOUT"`
	TerminateKillTimeout     string `help:"Time allowed after SIGKILL" default:"2s" toml:"terminate.kill_timeout" env:"TERMINATE_KILL_TIMEOUT"`
	TerminatePollInterval    string `help:"Liveness poll interval while waiting" default:"100ms" toml:"terminate.poll_interval" env:"TERMINATE_POLL_INTERVAL"`

	// systemd integration
	SystemdUnit    string `help:"systemd unit running another copy of the bot, stopped before launch" toml:"systemd.unit" env:"SYSTEMD_UNIT"`
	SystemdUserBus bool   `help:"Use the user D-Bus instead of the system bus" default:"false" toml:"systemd.user_bus" env:"SYSTEMD_USER_BUS"`

	// Metrics
	MetricsTextfile string `help:"node_exporter textfile to write metrics to" toml:"metrics.textfile" env:"METRICS_TEXTFILE"`

	// Control API served in watch mode
	ServerListen   string `help:"Address serving the control API and /metrics in watch mode" toml:"server.listen" env:"SERVER_LISTEN"`
	ServerUsername string `help:"Basic auth username for the control API" default:"admin" toml:"server.username" env:"SERVER_USERNAME"`
	ServerPassword string `help:"Basic auth password; auth is off when empty" toml:"server.password" env:"SERVER_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingProcess string `help:"Supervisor logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingUpdater string `help:"Updater logging level" default:"info" toml:"logging.updater" env:"LOGGING_UPDATER"`
}
