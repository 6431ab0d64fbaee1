package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/smazurov/botlauncher/internal/events"
	"github.com/smazurov/botlauncher/internal/process"
)

// Controller is the bot supervisor the API drives.
type Controller interface {
	Name() string
	LogPath() string
	Status(ctx context.Context) (*process.StatusReport, error)
	Restart(ctx context.Context) (*process.RestartResult, error)
}

// Options configures the API server.
type Options struct {
	AuthUsername   string
	AuthPassword   string
	Controller     Controller
	EventBus       *events.Bus  // Optional; enables /api/events
	MetricsHandler http.Handler // Optional Prometheus metrics handler
	Logger         *slog.Logger // Defaults to the "api" module logger
}

// authEnabled reports whether secured operations require credentials.
func (o *Options) authEnabled() bool {
	return o.AuthUsername != "" && o.AuthPassword != ""
}
