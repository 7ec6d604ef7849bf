package natsbus

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"esimchain/core/events"
)

// DefaultSubject prefixes every published event subject.
const DefaultSubject = "esim.events"

// Publisher is the subset of *nats.Conn used by the sink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the wire shape of a published event.
type Message struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"timestamp"`
}

// Sink publishes committed events to NATS. Each event goes to
// "<prefix>.<event type>". Publish failures are logged and dropped; the
// ledger never blocks on the bus.
type Sink struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewSink wraps an existing publisher.
func NewSink(pub Publisher, prefix string, logger *slog.Logger) (*Sink, error) {
	if pub == nil {
		return nil, errors.New("natsbus: publisher required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{pub: pub, prefix: prefix, logger: logger, nowFn: time.Now}, nil
}

// Connect dials url and returns a sink bound to the connection along with the
// connection itself so the caller can drain it on shutdown.
func Connect(url, prefix string, logger *slog.Logger) (*Sink, *nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("esimd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, err
	}
	sink, err := NewSink(conn, prefix, logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return sink, conn, nil
}

// Emit implements events.Emitter.
func (s *Sink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	payload := events.Unwrap(evt)
	data, err := json.Marshal(Message{
		Type:       payload.Type,
		Attributes: payload.Attributes,
		Timestamp:  s.nowFn().Unix(),
	})
	if err != nil {
		s.logger.Warn("natsbus: encode event", "type", payload.Type, "error", err)
		return
	}
	subject := events.Subject(s.prefix, evt)
	if err := s.pub.Publish(subject, data); err != nil {
		s.logger.Warn("natsbus: publish event", "subject", subject, "error", err)
	}
}

var _ events.Emitter = (*Sink)(nil)
