package httpsettle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/catmarket/internal/services/trading/settlement"
	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{
		BaseURL:         server.URL,
		HTTPClient:      server.Client(),
		Provider:        "payments",
		MaxTries:        3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func testRequest() settlement.Request {
	return settlement.Request{
		IdempotencyKey: "trade-1",
		PayerID:        "bob",
		PayeeID:        "alice",
		Amount:         decimal.RequireFromString("12.5"),
		Currency:       "CREDITS",
	}
}

func TestNewRequiresHTTPURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "::"} {
		if _, err := New(Config{BaseURL: raw}); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestSettleRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	settledAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/settlements" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get(IdempotencyHeader); got != "trade-1" {
			t.Errorf("idempotency key = %q", got)
		}
		var body settleRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Amount != "12.50" || body.PayerID != "bob" {
			t.Errorf("unexpected body: %+v", body)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(settleResponse{Reference: "pay-9", SettledAt: settledAt})
	}))

	result, err := client.Settle(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if result.Reference != "pay-9" || result.Provider != "payments" || !result.SettledAt.Equal(settledAt) {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSettlePaymentRequiredIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	_, err := client.Settle(context.Background(), testRequest())
	if !errors.Is(err, settlement.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestSettleGivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	_, err := client.Settle(context.Background(), testRequest())
	if !IsStatus(err, http.StatusBadGateway) {
		t.Fatalf("expected bad gateway status error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestSettleClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad currency", http.StatusBadRequest)
	}))
	_, err := client.Settle(context.Background(), testRequest())
	if !IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestCanPayAndRefund(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/wallets/bob/can-pay", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("amount") != "12.50" || r.URL.Query().Get("currency") != "CREDITS" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(canPayResponse{CanPay: true})
	})
	mux.HandleFunc("POST /v1/settlements/trade-1/refund", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, mux)

	ok, err := client.CanPay(context.Background(), "bob", decimal.RequireFromString("12.5"), "CREDITS")
	if err != nil || !ok {
		t.Fatalf("can pay = %v, %v", ok, err)
	}
	if err := client.Refund(context.Background(), "trade-1"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := client.Refund(context.Background(), "missing"); !errors.Is(err, settlement.ErrUnknownSettlement) {
		t.Fatalf("unknown refund: got %v", err)
	}
}

func TestStatusErrorDeclined(t *testing.T) {
	tests := map[int]bool{
		http.StatusBadRequest:          true,
		http.StatusUnprocessableEntity: true,
		http.StatusRequestTimeout:      false,
		http.StatusTooManyRequests:     false,
		http.StatusBadGateway:          false,
	}
	for code, want := range tests {
		if got := (&StatusError{StatusCode: code}).Declined(); got != want {
			t.Fatalf("Declined() for %d = %v, want %v", code, got, want)
		}
	}
	_, err := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported currency", http.StatusUnprocessableEntity)
	})).Settle(context.Background(), testRequest())
	if !settlement.IsDeclined(err) {
		t.Fatalf("expected a decline, got %v", err)
	}
}
