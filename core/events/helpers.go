package events

import "esimchain/core/types"

// Unwrap returns the typed payload carried by evt. Events without a payload
// are reported with their type and no attributes.
func Unwrap(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if p, ok := evt.(Payload); ok && p.Event() != nil {
		return p.Event().Clone()
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Subject maps an event type onto a dotted subject under prefix, e.g.
// "esim" + "market.sold" yields "esim.market.sold".
func Subject(prefix string, evt Event) string {
	if evt == nil {
		return prefix
	}
	if prefix == "" {
		return evt.EventType()
	}
	return prefix + "." + evt.EventType()
}
