package events

import "esimchain/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Payload is implemented by events carrying a typed attribute payload.
type Payload interface {
	Event
	Event() *types.Event
}

// Wrap adapts a raw types.Event into an Event.
func Wrap(evt *types.Event) Event { return wrapped{evt: evt} }

type wrapped struct {
	evt *types.Event
}

func (w wrapped) EventType() string {
	if w.evt == nil {
		return ""
	}
	return w.evt.Type
}

func (w wrapped) Event() *types.Event { return w.evt }
