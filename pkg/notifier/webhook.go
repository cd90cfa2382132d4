package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// EndpointResolver maps a tenant to its outbound webhook URL. An empty URL
// with a nil error means the tenant has no endpoint configured.
type EndpointResolver func(ctx context.Context, tenantID uuid.UUID) (string, error)

// WebhookGateway POSTs notifications as JSON to a tenant-configured endpoint.
// Failed deliveries are retried with backoff; a circuit breaker per gateway
// keeps a dead endpoint from absorbing every worker's time.
type WebhookGateway struct {
	client     *http.Client
	resolve    EndpointResolver
	backoff    BackoffStrategy
	circuit    *CircuitBreaker
	maxRetries int
}

// WebhookOption configures the webhook gateway.
type WebhookOption func(*WebhookGateway)

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(g *WebhookGateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithBackoff replaces the retry delay policy.
func WithBackoff(strategy BackoffStrategy) WebhookOption {
	return func(g *WebhookGateway) {
		if strategy != nil {
			g.backoff = strategy
		}
	}
}

// WithCircuitBreaker replaces the default circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) WebhookOption {
	return func(g *WebhookGateway) {
		if cb != nil {
			g.circuit = cb
		}
	}
}

// WithMaxRetries bounds retry attempts after the initial delivery.
func WithMaxRetries(n int) WebhookOption {
	return func(g *WebhookGateway) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// NewWebhookGateway creates an outbound webhook deliverer.
func NewWebhookGateway(resolve EndpointResolver, opts ...WebhookOption) (*WebhookGateway, error) {
	if resolve == nil {
		return nil, fmt.Errorf("%w: endpoint resolver is required", ErrInvalidConfig)
	}
	g := &WebhookGateway{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		resolve:    resolve,
		backoff:    DefaultBackoff(),
		circuit:    NewCircuitBreaker(5, 2, 30*time.Second),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type webhookPayload struct {
	TenantID string `json:"tenant_id"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	SentAt   string `json:"sent_at"`
}

// Notify implements Gateway. Tenants without an endpoint are accepted as a
// no-op so callers don't have to special-case them.
func (g *WebhookGateway) Notify(ctx context.Context, n Notification) error {
	endpoint, err := g.resolve(ctx, n.TenantID)
	if err != nil {
		return errors.Join(ErrRecipientUnknown, err)
	}
	if endpoint == "" {
		return nil
	}

	if !g.circuit.Allow() {
		return ErrCircuitOpen
	}

	body, err := json.Marshal(webhookPayload{
		TenantID: n.TenantID.String(),
		Subject:  n.Subject,
		Body:     n.Body,
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.backoff.NextInterval(attempt)):
			}
		}

		err := g.deliver(ctx, endpoint, body)
		if err == nil {
			g.circuit.RecordSuccess()
			return nil
		}
		g.circuit.RecordFailure()
		lastErr = err
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, g.maxRetries+1, lastErr)
}

func (g *WebhookGateway) deliver(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

var _ Gateway = (*WebhookGateway)(nil)
