package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxSpecialRequirementsLength caps the free-form requirements text, in runes.
const MaxSpecialRequirementsLength = 500

// TermsInput is the unvalidated form of offer terms.
type TermsInput struct {
	Price                string
	Currency             string
	Platform             string
	ExpiresAt            *time.Time
	AcceptsCounterOffers bool
	SpecialRequirements  string
}

// OfferTerms are validated offer terms. Build them with NewOfferTerms.
type OfferTerms struct {
	price                decimal.Decimal
	currency             string
	platform             Platform
	expiresAt            *time.Time
	acceptsCounterOffers bool
	specialRequirements  string
}

// NewOfferTerms validates input against now.
func NewOfferTerms(input TermsInput, now time.Time) (OfferTerms, error) {
	price, err := ParsePrice(input.Price)
	if err != nil {
		return OfferTerms{}, err
	}
	currencyCode, err := ParseCurrency(input.Currency)
	if err != nil {
		return OfferTerms{}, err
	}
	platform, err := ParsePlatform(input.Platform)
	if err != nil {
		return OfferTerms{}, err
	}
	var expiresAt *time.Time
	if input.ExpiresAt != nil {
		deadline := input.ExpiresAt.UTC()
		if !deadline.After(now) {
			return OfferTerms{}, ValidationError("deadline must be in the future")
		}
		expiresAt = &deadline
	}
	requirements := strings.TrimSpace(input.SpecialRequirements)
	if utf8.RuneCountInString(requirements) > MaxSpecialRequirementsLength {
		return OfferTerms{}, ValidationError("special requirements exceed %d characters", MaxSpecialRequirementsLength)
	}
	return OfferTerms{
		price:                price,
		currency:             currencyCode,
		platform:             platform,
		expiresAt:            expiresAt,
		acceptsCounterOffers: input.AcceptsCounterOffers,
		specialRequirements:  requirements,
	}, nil
}

func (t OfferTerms) Price() decimal.Decimal      { return t.price }
func (t OfferTerms) Currency() string            { return t.currency }
func (t OfferTerms) Platform() Platform          { return t.platform }
func (t OfferTerms) AcceptsCounterOffers() bool  { return t.acceptsCounterOffers }
func (t OfferTerms) SpecialRequirements() string { return t.specialRequirements }

// ExpiresAt returns the deadline, or nil when the offer does not expire.
func (t OfferTerms) ExpiresAt() *time.Time {
	if t.expiresAt == nil {
		return nil
	}
	deadline := *t.expiresAt
	return &deadline
}

// IsZero reports whether t was not built by NewOfferTerms.
func (t OfferTerms) IsZero() bool {
	return t.currency == ""
}
