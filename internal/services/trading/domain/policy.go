package domain

import "time"

// Policy holds the tunable trading rules.
type Policy struct {
	MinTradeLevel            int
	Cooldown                 time.Duration
	MaxActiveOffersPerSeller int
	MaxAssetsPerBuyer        int
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinTradeLevel:            5,
		Cooldown:                 24 * time.Hour,
		MaxActiveOffersPerSeller: 5,
		MaxAssetsPerBuyer:        50,
	}
}

// Validate rejects policies that would block every trade.
func (p Policy) Validate() error {
	if p.MinTradeLevel < 0 {
		return ValidationError("min trade level must not be negative")
	}
	if p.Cooldown < 0 {
		return ValidationError("cooldown must not be negative")
	}
	if p.MaxActiveOffersPerSeller <= 0 {
		return ValidationError("max active offers per seller must be positive")
	}
	if p.MaxAssetsPerBuyer <= 0 {
		return ValidationError("max assets per buyer must be positive")
	}
	return nil
}
