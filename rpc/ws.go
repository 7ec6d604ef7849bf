package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"esimchain/core/events"
	"esimchain/core/types"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

// EventMessage is the websocket frame of one committed event.
type EventMessage struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"timestamp"`
}

type subscriber struct {
	ch     chan EventMessage
	filter map[string]struct{}
}

func (s *subscriber) wants(eventType string) bool {
	if len(s.filter) == 0 {
		return true
	}
	if _, ok := s.filter[eventType]; ok {
		return true
	}
	module := eventType
	if idx := strings.Index(eventType, "."); idx > 0 {
		module = eventType[:idx]
	}
	_, ok := s.filter[module]
	return ok
}

// Broadcaster fans committed events out to websocket subscribers. Slow
// subscribers lose events rather than stall the ledger.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{subs: make(map[*subscriber]struct{}), logger: logger, nowFn: time.Now}
}

// Emit implements events.Emitter.
func (b *Broadcaster) Emit(evt events.Event) {
	payload := events.Unwrap(evt)
	if payload == nil {
		return
	}
	msg := eventMessage(payload, b.nowFn().Unix())
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.wants(msg.Type) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			b.logger.Warn("websocket subscriber lagging, event dropped", slog.String("type", msg.Type))
		}
	}
}

// Subscribe registers a subscriber for the given event types or module
// prefixes. An empty filter receives every event.
func (b *Broadcaster) Subscribe(filter []string) (<-chan EventMessage, func()) {
	sub := &subscriber{ch: make(chan EventMessage, subscriberBuffer), filter: make(map[string]struct{})}
	for _, f := range filter {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			sub.filter[trimmed] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
		})
	}
}

// Subscribers reports the number of connected subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

var _ events.Emitter = (*Broadcaster)(nil)

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	var filter []string
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		filter = strings.Split(raw, ",")
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	updates, cancel := s.events.Subscribe(filter)
	defer cancel()
	if err := streamEvents(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan EventMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, msg); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, msg EventMessage) error {
	if msg.Attributes == nil {
		msg.Attributes = map[string]string{}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func eventMessage(evt *types.Event, ts int64) EventMessage {
	return EventMessage{Type: evt.Type, Attributes: evt.Attributes, Timestamp: ts}
}
