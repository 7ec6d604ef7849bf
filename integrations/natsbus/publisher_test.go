package natsbus

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"esimchain/core/events"
	"esimchain/core/types"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func TestSinkPublishesUnderPrefix(t *testing.T) {
	pub := &fakePublisher{}
	sink, err := NewSink(pub, "chain.", nil)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	sink.nowFn = func() time.Time { return time.Unix(1_700_000_000, 0) }

	sink.Emit(events.Wrap(&types.Event{Type: "market.sold", Attributes: map[string]string{"assetId": "7"}}))

	if len(pub.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.msgs))
	}
	if pub.msgs[0].subject != "chain.market.sold" {
		t.Fatalf("unexpected subject %q", pub.msgs[0].subject)
	}
	var msg Message
	if err := json.Unmarshal(pub.msgs[0].data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "market.sold" || msg.Attributes["assetId"] != "7" || msg.Timestamp != 1_700_000_000 {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestSinkDefaultsPrefixAndSwallowsErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("disconnected")}
	sink, err := NewSink(pub, "", nil)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if sink.prefix != DefaultSubject {
		t.Fatalf("unexpected prefix %q", sink.prefix)
	}
	sink.Emit(events.Wrap(&types.Event{Type: "esim.minted"}))
	if len(pub.msgs) != 0 {
		t.Fatalf("failed publish must not be recorded")
	}
}

func TestNewSinkRequiresPublisher(t *testing.T) {
	if _, err := NewSink(nil, "", nil); err == nil {
		t.Fatalf("expected error")
	}
}
