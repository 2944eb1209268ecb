package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// CurrencyCredits is the in-house credit currency.
const CurrencyCredits = "CREDITS"

// PriceScale is the number of fractional digits a price may carry.
const PriceScale = 2

// ParseCurrency normalizes a currency code. CREDITS and ISO 4217 codes are
// recognized.
func ParseCurrency(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", ValidationError("currency is required")
	}
	if code == CurrencyCredits {
		return code, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", ValidationError("currency %q is not recognized", raw)
	}
	return unit.String(), nil
}

// ParsePrice parses a non-negative decimal price with at most two fractional
// digits.
func ParsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, ValidationError("price is required")
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, ValidationError("price %q is not a number", raw)
	}
	return price, ValidatePrice(price)
}

// MaxPrice is the largest price whose hundredths fit in an int64.
var MaxPrice = FromMinorUnits(math.MaxInt64)

// ValidatePrice checks sign, scale and that the price is representable in
// minor units.
func ValidatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return ValidationError("price must not be negative")
	}
	if !price.Equal(price.Truncate(PriceScale)) {
		return ValidationError("price must have at most %d decimal places", PriceScale)
	}
	if price.GreaterThan(MaxPrice) {
		return ValidationError("price must not exceed %s", FormatPrice(MaxPrice))
	}
	return nil
}

// ToMinorUnits converts a validated price to an integer count of hundredths.
// Prices above MaxPrice do not fit and must be rejected by ValidatePrice
// first.
func ToMinorUnits(price decimal.Decimal) int64 {
	return price.Shift(PriceScale).IntPart()
}

// FromMinorUnits converts hundredths back to a decimal price.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -PriceScale)
}

// FormatPrice renders a price with exactly two fractional digits.
func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(PriceScale)
}
