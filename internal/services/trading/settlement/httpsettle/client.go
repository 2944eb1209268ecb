// Package httpsettle settles trades through an external JSON-over-HTTP payment
// service.
//
// Requests carry the trade's idempotency key in the Idempotency-Key header, so
// transient failures are retried with exponential backoff without risking a
// double charge.
package httpsettle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/catmarket/internal/platform/timeouts"
	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/settlement"
	"github.com/shopspring/decimal"
)

// IdempotencyHeader carries the settlement idempotency key.
const IdempotencyHeader = "Idempotency-Key"

const (
	defaultMaxTries        = 4
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
	maxErrorBody           = 4 << 10
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	// Provider names the payment service in results; defaults to the host.
	Provider string
	MaxTries uint
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Client implements settlement.Settler against the payment service API.
type Client struct {
	baseURL         *url.URL
	http            *http.Client
	provider        string
	maxTries        uint
	initialInterval time.Duration
	maxInterval     time.Duration
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("settlement base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse settlement base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("settlement base url must be http or https")
	}
	c := &Client{
		baseURL:         base,
		http:            cfg.HTTPClient,
		provider:        strings.TrimSpace(cfg.Provider),
		maxTries:        cfg.MaxTries,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: timeouts.Settlement}
	}
	if c.provider == "" {
		c.provider = base.Host
	}
	if c.maxTries == 0 {
		c.maxTries = defaultMaxTries
	}
	if c.initialInterval <= 0 {
		c.initialInterval = defaultInitialInterval
	}
	if c.maxInterval <= 0 {
		c.maxInterval = defaultMaxInterval
	}
	return c, nil
}

type settleRequest struct {
	PayerID  string `json:"payer_id"`
	PayeeID  string `json:"payee_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type settleResponse struct {
	Reference string    `json:"reference"`
	SettledAt time.Time `json:"settled_at"`
}

type canPayResponse struct {
	CanPay bool `json:"can_pay"`
}

// CanPay asks the payment service whether payerID can cover amount.
func (c *Client) CanPay(ctx context.Context, payerID string, amount decimal.Decimal, currency string) (bool, error) {
	query := url.Values{}
	query.Set("amount", domain.FormatPrice(amount))
	query.Set("currency", currency)
	endpoint := c.endpoint("v1", "wallets", payerID, "can-pay") + "?" + query.Encode()

	var out canPayResponse
	err := c.do(ctx, http.MethodGet, endpoint, "", nil, &out)
	if err != nil {
		return false, err
	}
	return out.CanPay, nil
}

// Settle posts the settlement. Retries reuse the idempotency key.
func (c *Client) Settle(ctx context.Context, req settlement.Request) (settlement.Result, error) {
	if err := req.Validate(); err != nil {
		return settlement.Result{}, err
	}
	body, err := json.Marshal(settleRequest{
		PayerID:  req.PayerID,
		PayeeID:  req.PayeeID,
		Amount:   domain.FormatPrice(req.Amount),
		Currency: req.Currency,
	})
	if err != nil {
		return settlement.Result{}, fmt.Errorf("encode settlement: %w", err)
	}
	var out settleResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("v1", "settlements"), req.IdempotencyKey, body, &out); err != nil {
		return settlement.Result{}, err
	}
	reference := out.Reference
	if reference == "" {
		reference = req.IdempotencyKey
	}
	return settlement.Result{
		Provider:  c.provider,
		Reference: reference,
		SettledAt: out.SettledAt.UTC(),
	}, nil
}

// Refund reverses the settlement recorded under idempotencyKey.
func (c *Client) Refund(ctx context.Context, idempotencyKey string) error {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	endpoint := c.endpoint("v1", "settlements", idempotencyKey, "refund")
	return c.do(ctx, http.MethodPost, endpoint, "refund:"+idempotencyKey, nil, nil)
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	return c.baseURL.JoinPath(escaped...).String()
}

// do sends one logical request, retrying network errors, 429 and 5xx
// responses. Other failures stop the retry loop.
func (c *Client) do(ctx context.Context, method, endpoint, idempotencyKey string, body []byte, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, method, endpoint, idempotencyKey, body, out)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	return err
}

func (c *Client) attempt(ctx context.Context, method, endpoint, idempotencyKey string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build settlement request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("settlement request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode settlement response: %w", err))
		}
		return nil
	case resp.StatusCode == http.StatusPaymentRequired:
		return backoff.Permanent(settlement.ErrInsufficientFunds)
	case resp.StatusCode == http.StatusNotFound && method == http.MethodPost && strings.HasSuffix(endpoint, "/refund"):
		return backoff.Permanent(settlement.ErrUnknownSettlement)
	case resp.StatusCode == http.StatusConflict:
		return backoff.Permanent(settlement.ErrKeyReused)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return statusError(resp)
	default:
		return backoff.Permanent(statusError(resp))
	}
}

// StatusError is an unexpected payment service response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("settlement service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("settlement service returned %d: %s", e.StatusCode, e.Body)
}

// Declined reports whether the service refused the request outright. Client
// errors other than 408 and 429 mean nothing was applied.
func (e *StatusError) Declined() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}

// IsStatus reports whether err is a StatusError with code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
