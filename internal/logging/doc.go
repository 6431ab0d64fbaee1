// Package logging provides structured logging with per-module log level configuration.
//
// Console logs go to stderr so that stdout carries only command output
// (the launch report line, status JSON). When journald is reachable every
// record is also sent to the journal under the identifier "botlauncher".
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"process": "debug",
//		},
//	})
//
// Then get a logger per module:
//
//	logger := logging.GetLogger("process")
//	logger.Info("Process started", "pid", pid)
//
// Loggers obtained before Initialize are updated in place.
//
// Viewing logs:
//
//	journalctl -t botlauncher -f
//	journalctl -t botlauncher MODULE=process PID=4821
package logging
