package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// Bus carries supervisor lifecycle events between packages. Handlers run
// on dispatcher goroutines, so Publish never blocks on a slow subscriber.
type Bus struct {
	dispatcher *event.Dispatcher
	closed     atomic.Bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to the subscribers of its concrete type.
// Events published after Close are dropped.
func (b *Bus) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	switch e := ev.(type) {
	case PriorInstanceTerminatedEvent:
		event.Publish(b.dispatcher, e)
	case TerminationFailedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessLaunchedEvent:
		event.Publish(b.dispatcher, e)
	case LaunchFailedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessExitedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler, whose parameter type selects the event,
// e.g. func(ProcessExitedEvent). It returns the unsubscribe function.
// Handlers of any other shape are ignored.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(PriorInstanceTerminatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TerminationFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessLaunchedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LaunchFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	}
	return func() {}
}

// Close stops delivery and releases the dispatcher's goroutines.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.dispatcher.Close()
}
