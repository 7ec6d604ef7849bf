package events

import "sync"

// Buffer stages events raised while an operation is in flight. The node flushes
// a buffer only after the operation's state writes have been committed, and
// drops it when the operation is rejected.
type Buffer struct {
	events []Event
}

// Emit records the event for a later flush.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Events returns the staged events in emission order.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush forwards the staged events to dst and resets the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if b == nil {
		return
	}
	if dst != nil {
		for _, evt := range b.events {
			dst.Emit(evt)
		}
	}
	b.events = nil
}

// Reset discards staged events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.events = nil
}

// Fanout delivers each event to every registered emitter in registration order.
type Fanout struct {
	mu       sync.RWMutex
	emitters []Emitter
}

// NewFanout constructs a fanout over the supplied emitters, skipping nils.
func NewFanout(emitters ...Emitter) *Fanout {
	f := &Fanout{}
	for _, e := range emitters {
		f.Add(e)
	}
	return f
}

// Add registers an additional emitter.
func (f *Fanout) Add(e Emitter) {
	if f == nil || e == nil {
		return
	}
	f.mu.Lock()
	f.emitters = append(f.emitters, e)
	f.mu.Unlock()
}

// Emit implements Emitter.
func (f *Fanout) Emit(evt Event) {
	if f == nil {
		return
	}
	f.mu.RLock()
	emitters := f.emitters
	f.mu.RUnlock()
	for _, e := range emitters {
		e.Emit(evt)
	}
}
