package credits

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/catmarket/internal/services/trading/settlement"
	"github.com/louisbranch/catmarket/internal/services/trading/storage/sqlite"
	"github.com/shopspring/decimal"
)

func newTestSettler(t *testing.T) *Settler {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "trading.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	settler, err := New(context.Background(), store.DB(), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new settler: %v", err)
	}
	return settler
}

func mustBalance(t *testing.T, s *Settler, owner string) string {
	t.Helper()
	balance, err := s.Balance(context.Background(), owner, "CREDITS")
	if err != nil {
		t.Fatalf("balance %s: %v", owner, err)
	}
	return balance.StringFixed(2)
}

func TestSettleMovesFundsOnce(t *testing.T) {
	s := newTestSettler(t)
	ctx := context.Background()
	if err := s.Deposit(ctx, "bob", "credits", decimal.RequireFromString("100")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	req := settlement.Request{
		IdempotencyKey: "trade-1",
		PayerID:        "bob",
		PayeeID:        "alice",
		Amount:         decimal.RequireFromString("40.50"),
		Currency:       "CREDITS",
	}
	first, err := s.Settle(ctx, req)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	second, err := s.Settle(ctx, req)
	if err != nil {
		t.Fatalf("repeat settle: %v", err)
	}
	if first.Reference != second.Reference || first.Provider != Provider {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
	if got := mustBalance(t, s, "bob"); got != "59.50" {
		t.Fatalf("payer balance = %s", got)
	}
	if got := mustBalance(t, s, "alice"); got != "40.50" {
		t.Fatalf("payee balance = %s", got)
	}

	req.Amount = decimal.RequireFromString("1")
	if _, err := s.Settle(ctx, req); !errors.Is(err, settlement.ErrKeyReused) {
		t.Fatalf("reused key: got %v", err)
	}
}

func TestSettleInsufficientFunds(t *testing.T) {
	s := newTestSettler(t)
	ctx := context.Background()
	if err := s.Deposit(ctx, "bob", "CREDITS", decimal.RequireFromString("5")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	ok, err := s.CanPay(ctx, "bob", decimal.RequireFromString("10"), "CREDITS")
	if err != nil || ok {
		t.Fatalf("can pay = %v, %v", ok, err)
	}
	_, err = s.Settle(ctx, settlement.Request{
		IdempotencyKey: "trade-1", PayerID: "bob", PayeeID: "alice",
		Amount: decimal.RequireFromString("10"), Currency: "CREDITS",
	})
	if !errors.Is(err, settlement.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := mustBalance(t, s, "bob"); got != "5.00" {
		t.Fatalf("payer balance changed to %s", got)
	}
}

func TestRefundIsIdempotent(t *testing.T) {
	s := newTestSettler(t)
	ctx := context.Background()
	if err := s.Deposit(ctx, "bob", "CREDITS", decimal.RequireFromString("20")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	req := settlement.Request{
		IdempotencyKey: "trade-1", PayerID: "bob", PayeeID: "alice",
		Amount: decimal.RequireFromString("20"), Currency: "CREDITS",
	}
	if _, err := s.Settle(ctx, req); err != nil {
		t.Fatalf("settle: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.Refund(ctx, "trade-1"); err != nil {
			t.Fatalf("refund %d: %v", i, err)
		}
	}
	if got := mustBalance(t, s, "bob"); got != "20.00" {
		t.Fatalf("payer balance = %s", got)
	}
	if got := mustBalance(t, s, "alice"); got != "0.00" {
		t.Fatalf("payee balance = %s", got)
	}
	if _, err := s.Settle(ctx, req); !errors.Is(err, settlement.ErrAlreadyRefunded) {
		t.Fatalf("settle after refund: got %v", err)
	}
	if err := s.Refund(ctx, "missing"); !errors.Is(err, settlement.ErrUnknownSettlement) {
		t.Fatalf("unknown refund: got %v", err)
	}
}

func TestConcurrentSettlesNeverOverdraw(t *testing.T) {
	s := newTestSettler(t)
	ctx := context.Background()
	if err := s.Deposit(ctx, "bob", "CREDITS", decimal.RequireFromString("30")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Settle(ctx, settlement.Request{
				IdempotencyKey: "trade-" + string(rune('a'+i)),
				PayerID:        "bob",
				PayeeID:        "alice",
				Amount:         decimal.RequireFromString("10"),
				Currency:       "CREDITS",
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if succeeded != 3 {
		t.Fatalf("succeeded = %d, want 3", succeeded)
	}
	if got := mustBalance(t, s, "bob"); got != "0.00" {
		t.Fatalf("payer balance = %s", got)
	}
}

func TestFreeSettlementNeedsNoWallet(t *testing.T) {
	s := newTestSettler(t)
	result, err := s.Settle(context.Background(), settlement.Request{
		IdempotencyKey: "trade-free", PayerID: "bob", PayeeID: "alice",
		Amount: decimal.Zero, Currency: "CREDITS",
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Reference != "trade-free" {
		t.Fatalf("reference = %q", result.Reference)
	}
}
