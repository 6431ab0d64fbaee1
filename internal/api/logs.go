package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/botlauncher/internal/api/models"
	"github.com/smazurov/botlauncher/internal/logfile"
)

func (s *Server) registerLogRoutes() {
	ctl := s.options.Controller

	huma.Register(s.api, huma.Operation{
		OperationID: "get-bot-logs",
		Method:      http.MethodGet,
		Path:        "/api/bot/logs",
		Summary:     "Bot Logs",
		Description: "Get the trailing lines of the bot's log file",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(_ context.Context, input *models.LogsInput) (*models.LogsResponse, error) {
		path := ctl.LogPath()
		lines, err := logfile.Tail(path, input.Lines)
		if errors.Is(err, os.ErrNotExist) {
			return nil, huma.Error404NotFound("Log file does not exist")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to read log file", err)
		}
		if lines == nil {
			lines = []string{}
		}
		return &models.LogsResponse{Body: models.LogsData{Path: path, Lines: lines}}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "bot-logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/bot/logs/stream",
		Summary:     "Bot Log Stream",
		Description: "Stream lines appended to the bot's log file via Server-Sent Events",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"line": models.LogLineEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		path := ctl.LogPath()
		offset, err := logfile.Size(path)
		if err != nil {
			s.logger.Warn("Failed to stat log file", "path", path, "error", err)
			return
		}

		w := &lineWriter{send: func(line string) error {
			return send.Data(models.LogLineEvent{Line: line})
		}}
		if err := logfile.Follow(ctx, path, offset, w); err != nil {
			s.logger.Debug("Log stream ended", "error", err)
		}
	})
}

// lineWriter splits written bytes into lines and sends each complete one.
type lineWriter struct {
	buf  []byte
	send func(string) error
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimSuffix(w.buf[:i], []byte{'\r'}))
		w.buf = w.buf[i+1:]
		if err := w.send(line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
