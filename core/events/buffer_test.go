package events

import (
	"testing"

	"esimchain/core/types"
)

type recorder struct {
	seen []string
}

func (r *recorder) Emit(evt Event) { r.seen = append(r.seen, evt.EventType()) }

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(Wrap(&types.Event{Type: "a"}))
	buf.Emit(Wrap(&types.Event{Type: "b"}))
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.seen) != 2 || rec.seen[0] != "a" || rec.seen[1] != "b" {
		t.Fatalf("unexpected flush order: %v", rec.seen)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("expected buffer to be empty after flush")
	}
}

func TestBufferResetDropsEvents(t *testing.T) {
	var buf Buffer
	buf.Emit(Wrap(&types.Event{Type: "a"}))
	buf.Reset()
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.seen) != 0 {
		t.Fatalf("expected no events after reset, got %v", rec.seen)
	}
}

func TestFanoutDeliversToAll(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	f := NewFanout(a, nil, b)
	f.Emit(Wrap(&types.Event{Type: "x"}))
	if len(a.seen) != 1 || len(b.seen) != 1 {
		t.Fatalf("expected both emitters to receive the event")
	}
}

func TestUnwrapClonesPayload(t *testing.T) {
	raw := &types.Event{Type: "esim.minted", Attributes: map[string]string{"assetId": "1"}}
	out := Unwrap(Wrap(raw))
	out.Attributes["assetId"] = "2"
	if raw.Attributes["assetId"] != "1" {
		t.Fatalf("unwrap must not alias the payload")
	}
	if got := Subject("esim", Wrap(raw)); got != "esim.esim.minted" {
		t.Fatalf("unexpected subject %q", got)
	}
}
