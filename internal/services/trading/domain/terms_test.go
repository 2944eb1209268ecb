package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewOfferTermsValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(time.Hour)
	terms, err := NewOfferTerms(TermsInput{
		Price:                "100",
		Currency:             "credits",
		Platform:             "internal",
		ExpiresAt:            &deadline,
		AcceptsCounterOffers: true,
		SpecialRequirements:  "  indoor home only  ",
	}, now)
	if err != nil {
		t.Fatalf("NewOfferTerms: %v", err)
	}
	if FormatPrice(terms.Price()) != "100.00" {
		t.Fatalf("price = %s", terms.Price())
	}
	if terms.Currency() != CurrencyCredits {
		t.Fatalf("currency = %q", terms.Currency())
	}
	if terms.Platform() != PlatformInternal {
		t.Fatalf("platform = %q", terms.Platform())
	}
	if got := terms.ExpiresAt(); got == nil || !got.Equal(deadline) {
		t.Fatalf("expires at = %v", got)
	}
	if terms.SpecialRequirements() != "indoor home only" {
		t.Fatalf("requirements = %q", terms.SpecialRequirements())
	}
	if !terms.AcceptsCounterOffers() {
		t.Fatal("expected counter offers accepted")
	}
}

func TestNewOfferTermsRejectsInvalidInput(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	base := TermsInput{Price: "10", Currency: "USD", Platform: "partner"}

	tests := []struct {
		name   string
		mutate func(*TermsInput)
	}{
		{"negative price", func(in *TermsInput) { in.Price = "-1" }},
		{"too many decimals", func(in *TermsInput) { in.Price = "10.005" }},
		{"not a number", func(in *TermsInput) { in.Price = "ten" }},
		{"missing price", func(in *TermsInput) { in.Price = "" }},
		{"unknown currency", func(in *TermsInput) { in.Currency = "DOGE" }},
		{"unknown platform", func(in *TermsInput) { in.Platform = "ebay" }},
		{"past deadline", func(in *TermsInput) { in.ExpiresAt = &past }},
		{"deadline equal to now", func(in *TermsInput) { in.ExpiresAt = &now }},
		{"long requirements", func(in *TermsInput) { in.SpecialRequirements = strings.Repeat("x", MaxSpecialRequirementsLength+1) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := base
			tc.mutate(&input)
			_, err := NewOfferTerms(input, now)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNewOfferTermsAllowsFreeOffer(t *testing.T) {
	terms, err := NewOfferTerms(TermsInput{Price: "0", Currency: "EUR", Platform: "metaverse"}, time.Now())
	if err != nil {
		t.Fatalf("NewOfferTerms: %v", err)
	}
	if !terms.Price().IsZero() {
		t.Fatalf("price = %s, want 0", terms.Price())
	}
	if terms.ExpiresAt() != nil {
		t.Fatal("expected no deadline")
	}
}
