package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"esimchain/core/events"
)

const (
	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 64

	// HeaderEvent carries the event type of a delivery.
	HeaderEvent = "X-ESIM-Event"
	// HeaderSignature carries the hex HMAC-SHA256 of the body.
	HeaderSignature = "X-ESIM-Signature"
	// HeaderDelivery carries the unique delivery id.
	HeaderDelivery = "X-ESIM-Delivery"
)

// ErrDispatcherClosed is returned when enqueueing after Close.
var ErrDispatcherClosed = errors.New("webhook: dispatcher closed")

// Payload is the webhook body for a committed ledger event.
type Payload struct {
	DeliveryID string            `json:"deliveryId"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  time.Time         `json:"emittedAt"`
}

// Dispatcher delivers committed events to a webhook endpoint with retry and
// exponential backoff. Deliveries run on a single worker in emission order.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts uint64
	minBackoff  time.Duration
	maxBackoff  time.Duration
	filter      map[string]struct{}
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	id        string
	eventType string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = uint64(maxAttempts)
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithEventTypes restricts deliveries to the listed event types.
func WithEventTypes(types ...string) Option {
	return func(d *Dispatcher) {
		for _, t := range types {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if d.filter == nil {
				d.filter = make(map[string]struct{})
			}
			d.filter[t] = struct{}{}
		}
	}
}

// WithLogger sets the logger used for failed deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan delivery, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.wg.Add(1)
	go d.worker()
	return d, nil
}

// Close stops the dispatcher and waits for the worker to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Emit implements events.Emitter. Events outside the configured filter are
// ignored; a full queue drops the event with a warning.
func (d *Dispatcher) Emit(evt events.Event) {
	if d == nil || evt == nil {
		return
	}
	if d.filter != nil {
		if _, ok := d.filter[evt.EventType()]; !ok {
			return
		}
	}
	payload := events.Unwrap(evt)
	if err := d.Enqueue(Payload{Type: payload.Type, Attributes: payload.Attributes}); err != nil {
		d.logger.Warn("webhook: enqueue event", "type", payload.Type, "error", err)
	}
}

// Enqueue schedules a delivery without blocking.
func (d *Dispatcher) Enqueue(payload Payload) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	if payload.DeliveryID == "" {
		payload.DeliveryID = uuid.NewString()
	}
	if payload.EmittedAt.IsZero() {
		payload.EmittedAt = time.Now().UTC()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := delivery{id: payload.DeliveryID, eventType: payload.Type, body: data}
	select {
	case <-d.ctx.Done():
		return ErrDispatcherClosed
	default:
	}
	select {
	case d.queue <- job:
		return nil
	case <-d.ctx.Done():
		return ErrDispatcherClosed
	default:
		return errors.New("webhook: queue full")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.minBackoff
	b.MaxInterval = d.maxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, d.maxAttempts-1), d.ctx)
	operation := func() error {
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		defer cancel()
		return d.send(ctx, job)
	}
	if err := backoff.Retry(operation, policy); err != nil && d.ctx.Err() == nil {
		d.logger.Warn("webhook: delivery abandoned", "delivery", job.id, "type", job.eventType, "error", err)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, job.eventType)
	req.Header.Set(HeaderDelivery, job.id)
	req.Header.Set(HeaderSignature, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the "sha256=<hex>" HMAC of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var _ events.Emitter = (*Dispatcher)(nil)
