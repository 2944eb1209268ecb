package domain

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/louisbranch/catmarket/internal/platform/timeouts"
)

// Webhook request headers.
const (
	SignatureHeader = "X-Catmarket-Signature"
	EventTypeHeader = "X-Catmarket-Event"
	EventIDHeader   = "X-Catmarket-Event-Id"
)

const maxWebhookErrorBody = 1 << 10

// WebhookEnvelope is the JSON body posted for every event.
type WebhookEnvelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Payload     json.RawMessage `json:"payload"`
}

// WebhookHandler posts events to one subscriber endpoint.
type WebhookHandler struct {
	endpoint string
	secret   []byte
	client   *http.Client
}

// NewWebhookHandler validates endpoint and builds a handler. An empty secret
// sends unsigned requests.
func NewWebhookHandler(endpoint, secret string, client *http.Client) (*WebhookHandler, error) {
	endpoint = strings.TrimSpace(endpoint)
	parsed, err := url.Parse(endpoint)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("webhook url %q must be an absolute http(s) url", endpoint)
	}
	if client == nil {
		client = &http.Client{Timeout: timeouts.Webhook}
	}
	return &WebhookHandler{endpoint: endpoint, secret: []byte(secret), client: client}, nil
}

// Handle delivers event. Subscriber 4xx responses other than 408 and 429
// are permanent; everything else may be retried.
func (h *WebhookHandler) Handle(ctx context.Context, event Event) error {
	if h == nil || h.client == nil {
		return Permanent(fmt.Errorf("webhook handler is not configured"))
	}
	payload := json.RawMessage(event.PayloadJSON)
	if !json.Valid(payload) {
		return Permanent(fmt.Errorf("event %s payload is not valid json", event.ID))
	}
	body, err := json.Marshal(WebhookEnvelope{
		ID:          event.ID,
		Type:        event.Type,
		AggregateID: event.AggregateID,
		CreatedAt:   event.CreatedAt.UTC(),
		Payload:     payload,
	})
	if err != nil {
		return Permanent(fmt.Errorf("encode webhook body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventTypeHeader, event.Type)
	req.Header.Set(EventIDHeader, event.ID)
	if len(h.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(h.secret, body))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebhookErrorBody))
	failure := fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return Permanent(failure)
	}
	return failure
}

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
func VerifySignature(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(signature)))
}
