package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/botlauncher/internal/api/models"
	"github.com/smazurov/botlauncher/internal/process"
)

func (s *Server) registerBotRoutes() {
	ctl := s.options.Controller

	huma.Register(s.api, huma.Operation{
		OperationID: "get-bot-status",
		Method:      http.MethodGet,
		Path:        "/api/bot/status",
		Summary:     "Bot Status",
		Description: "Get the recorded state of the bot and any untracked instances",
		Tags:        []string{"bot"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.BotStatusResponse, error) {
		report, err := ctl.Status(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to read bot status", err)
		}
		return &models.BotStatusResponse{Body: statusData(ctl.Name(), report)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-bot",
		Method:      http.MethodPost,
		Path:        "/api/bot/restart",
		Summary:     "Restart Bot",
		Description: "Terminate running instances and launch a fresh one",
		Tags:        []string{"bot"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.RestartResponse, error) {
		// A client hanging up must not abandon a half-finished restart
		result, err := ctl.Restart(context.WithoutCancel(ctx))
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to restart bot", err)
		}
		return &models.RestartResponse{Body: restartData(result)}, nil
	})
}

func statusData(name string, report *process.StatusReport) models.BotStatusData {
	p := report.Process
	data := models.BotStatusData{
		Name:    name,
		Status:  string(p.Status),
		PID:     p.PID,
		Command: p.Command,
		LogPath: p.LogPath,
	}
	if !p.StartedAt.IsZero() {
		data.StartedAt = p.StartedAt.Format(time.RFC3339)
	}
	for _, stray := range report.Strays {
		data.Strays = append(data.Strays, models.Stray{PID: stray.PID, Cmdline: stray.Cmdline})
	}
	return data
}

func restartData(result *process.RestartResult) models.RestartData {
	data := models.RestartData{
		PID:      result.Process.PID,
		LaunchID: result.Process.LaunchID,
	}
	if report := result.Terminated; report != nil {
		data.Terminated = len(report.Terminated)
		data.Killed = len(report.Killed)
		for _, f := range report.Failed {
			data.Failed = append(data.Failed, f.Error())
		}
	}
	return data
}
