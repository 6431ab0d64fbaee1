package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/botlauncher/internal/events"
)

// registerEventRoutes registers the supervisor event stream.
func (s *Server) registerEventRoutes() {
	bus := s.options.EventBus
	if bus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Supervisor Event Stream",
		Description: "Real-time launches, exits and terminations via Server-Sent Events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"prior-instance-terminated": events.PriorInstanceTerminatedEvent{},
		"termination-failed":        events.TerminationFailedEvent{},
		"process-launched":          events.ProcessLaunchedEvent{},
		"launch-failed":             events.LaunchFailedEvent{},
		"process-exited":            events.ProcessExitedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.PriorInstanceTerminatedEvent](bus, eventCh),
			events.SubscribeToChannel[events.TerminationFailedEvent](bus, eventCh),
			events.SubscribeToChannel[events.ProcessLaunchedEvent](bus, eventCh),
			events.SubscribeToChannel[events.LaunchFailedEvent](bus, eventCh),
			events.SubscribeToChannel[events.ProcessExitedEvent](bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
