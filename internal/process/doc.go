// Package process supervises a single long-running bot process.
//
// A Supervisor replaces a shell launcher of the form
//
//	pkill -f run_telegram_bot.py
//	nohup python run_telegram_bot.py > telegram_bot.log 2>&1 &
//	echo "Started Telegram bot with PID: $!"
//
// with three explicit steps:
//
// TerminatePriorInstances finds earlier instances and stops them:
//   - The PID file written by the previous launch, verified against the
//     process command line so a recycled PID is never signalled
//   - A command-line scan of the process table, for instances started by
//     other means or with a lost PID file
//   - Optionally a systemd unit running another copy of the bot
//   - SIGTERM to the process group, bounded wait, then SIGKILL
//
// LaunchDetached starts the new instance in its own session with stdout and
// stderr on one truncated log file, records the PID, and returns without
// waiting for the child.
//
// ReportLaunch prints the one-line confirmation with the new PID.
//
// Example usage:
//
//	sup := process.New(process.DefaultConfig(), logger)
//	result, err := sup.Restart(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Process.PID)
package process
