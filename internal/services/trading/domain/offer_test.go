package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OfferStatus
		want     bool
	}{
		{OfferPending, OfferAccepted, true},
		{OfferPending, OfferCancelled, true},
		{OfferPending, OfferCompleted, false},
		{OfferAccepted, OfferCompleted, true},
		{OfferAccepted, OfferPending, true},
		{OfferAccepted, OfferDisputed, true},
		{OfferAccepted, OfferCancelled, false},
		{OfferCompleted, OfferPending, false},
		{OfferCancelled, OfferPending, false},
		{OfferRejected, OfferAccepted, false},
		{OfferDisputed, OfferCompleted, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range []OfferStatus{OfferCompleted, OfferCancelled, OfferRejected, OfferDisputed} {
		if !status.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	for _, status := range []OfferStatus{OfferPending, OfferAccepted} {
		if status.IsTerminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
}

func TestParseOfferStatus(t *testing.T) {
	got, err := ParseOfferStatus(" Pending ")
	if err != nil || got != OfferPending {
		t.Fatalf("ParseOfferStatus = %q, %v", got, err)
	}
	if _, err := ParseOfferStatus("sold"); !IsCode(err, ErrValidation.Code) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParsePlatform(t *testing.T) {
	for _, raw := range []string{"internal", "METAVERSE", " partner"} {
		if _, err := ParsePlatform(raw); err != nil {
			t.Fatalf("ParsePlatform(%q): %v", raw, err)
		}
	}
	for _, raw := range []string{"", "ebay"} {
		if _, err := ParsePlatform(raw); err == nil {
			t.Fatalf("expected error for platform %q", raw)
		}
	}
}

func TestOfferIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := now
	offer := Offer{ExpiresAt: &deadline}
	if !offer.IsExpired(now) {
		t.Fatal("offer should be expired at its deadline")
	}
	if offer.IsExpired(now.Add(-time.Second)) {
		t.Fatal("offer should not be expired before its deadline")
	}
	if (Offer{}).IsExpired(now) {
		t.Fatal("offer without deadline never expires")
	}
}
