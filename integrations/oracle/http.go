package oracle

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"esimchain/native/proof"
	"esimchain/observability/metrics"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultMaxRetries    = 3
	defaultTripThreshold = 5
	defaultOpenTimeout   = 30 * time.Second
	maxResponseBytes     = 1 << 16
)

var (
	// ErrEndpointRequired is returned when the attester URL is empty.
	ErrEndpointRequired = errors.New("oracle: endpoint required")
	// ErrMalformedVerdict is returned when the attester answers with an entropy
	// outside the 0-100 scale.
	ErrMalformedVerdict = errors.New("oracle: malformed verdict")
)

// HTTPConfig tunes the attester client.
type HTTPConfig struct {
	Endpoint      string
	Timeout       time.Duration
	MaxRetries    uint64
	TripThreshold uint32
	OpenTimeout   time.Duration
	InitialDelay  time.Duration
	MaxDelay      time.Duration
}

type evaluateRequest struct {
	RequestID string `json:"requestId"`
	Signature string `json:"signature"`
	DataHash  string `json:"dataHash"`
}

// HTTPClient asks a remote attester to evaluate proof material. Transient
// failures are retried with exponential backoff and repeated failures open a
// circuit breaker so a dead attester fails fast.
type HTTPClient struct {
	endpoint   string
	client     *http.Client
	maxRetries uint64
	initial    time.Duration
	maxDelay   time.Duration
	breaker    *gobreaker.CircuitBreaker
}

// NewHTTPClient constructs an attester client from cfg.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	threshold := cfg.TripThreshold
	if threshold == 0 {
		threshold = defaultTripThreshold
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}
	initial := cfg.InitialDelay
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "proof-oracle",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			metrics.Oracle().SetBreakerOpen(to == gobreaker.StateOpen)
		},
	})
	return &HTTPClient{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
		maxRetries: retries,
		initial:    initial,
		maxDelay:   maxDelay,
		breaker:    breaker,
	}, nil
}

// State reports the breaker state ("closed", "half-open" or "open").
func (c *HTTPClient) State() string {
	return c.breaker.State().String()
}

// Evaluate implements proof.Oracle.
func (c *HTTPClient) Evaluate(ctx context.Context, signature []byte, dataHash [32]byte) (proof.Result, error) {
	body, err := json.Marshal(evaluateRequest{
		RequestID: uuid.NewString(),
		Signature: hex.EncodeToString(signature),
		DataHash:  hex.EncodeToString(dataHash[:]),
	})
	if err != nil {
		return proof.Result{}, err
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.evaluateWithRetry(ctx, body)
	})
	if err != nil {
		return proof.Result{}, err
	}
	return out.(proof.Result), nil
}

func (c *HTTPClient) evaluateWithRetry(ctx context.Context, body []byte) (proof.Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = c.maxDelay
	b.MaxElapsedTime = 0

	var result proof.Result
	operation := func() error {
		res, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		result = res
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return proof.Result{}, err
	}
	return result, nil
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (proof.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return proof.Result{}, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return proof.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return proof.Result{}, fmt.Errorf("oracle: attester returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return proof.Result{}, backoff.Permanent(fmt.Errorf("oracle: attester returned status %d", resp.StatusCode))
	}
	var verdict proof.Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&verdict); err != nil {
		return proof.Result{}, backoff.Permanent(fmt.Errorf("oracle: decode verdict: %w", err))
	}
	if verdict.Entropy > proof.MaxEntropy {
		return proof.Result{}, backoff.Permanent(ErrMalformedVerdict)
	}
	return verdict, nil
}

var _ proof.Oracle = (*HTTPClient)(nil)
