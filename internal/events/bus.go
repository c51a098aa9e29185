package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Handlers run asynchronously.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish delivers ev to every subscriber of its concrete type.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case FrameProcessedEvent:
		event.Publish(b.dispatcher, e)
	case SymbolDecodedEvent:
		event.Publish(b.dispatcher, e)
	case SessionChangedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter
// and returns an unsubscribe function. Unknown handler types get a no-op.
//
//	unsub := bus.Subscribe(func(e SymbolDecodedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(FrameProcessedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SymbolDecodedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
