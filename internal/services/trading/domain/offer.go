package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OfferStatus is the lifecycle state of an offer.
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferCancelled OfferStatus = "cancelled"
	OfferCompleted OfferStatus = "completed"
	OfferDisputed  OfferStatus = "disputed"
)

// CancelReasonExpired marks offers cancelled by the expiry sweep.
const CancelReasonExpired = "expired"

// CancelReasonSeller marks offers cancelled by their seller.
const CancelReasonSeller = "seller_cancelled"

var transitions = map[OfferStatus][]OfferStatus{
	OfferPending:  {OfferAccepted, OfferCancelled},
	OfferAccepted: {OfferCompleted, OfferPending, OfferDisputed},
}

// CanTransition reports whether an offer may move from one status to another.
// Accepted to Pending is the revert path after a failed re-validation or
// settlement.
func CanTransition(from, to OfferStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status.
func (s OfferStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferPending, OfferAccepted, OfferRejected, OfferCancelled, OfferCompleted, OfferDisputed:
		return true
	}
	return false
}

// ParseOfferStatus parses a case-insensitive status name.
func ParseOfferStatus(raw string) (OfferStatus, error) {
	status := OfferStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ValidationError("offer status %q is not recognized", raw)
	}
	return status, nil
}

// Platform is the venue an offer is listed on.
type Platform string

const (
	PlatformInternal  Platform = "internal"
	PlatformMetaverse Platform = "metaverse"
	PlatformPartner   Platform = "partner"
)

// ParsePlatform parses a case-insensitive platform name.
func ParsePlatform(raw string) (Platform, error) {
	platform := Platform(strings.ToLower(strings.TrimSpace(raw)))
	switch platform {
	case PlatformInternal, PlatformMetaverse, PlatformPartner:
		return platform, nil
	case "":
		return "", ValidationError("platform is required")
	}
	return "", ValidationError("platform %q is not recognized", raw)
}

// Offer is a seller's listing of one asset.
type Offer struct {
	ID                   string
	AssetID              string
	SellerID             string
	Price                decimal.Decimal
	Currency             string
	Platform             Platform
	Status               OfferStatus
	AcceptsCounterOffers bool
	SpecialRequirements  string
	ExpiresAt            *time.Time
	AcceptedBy           string
	CancelReason         string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsExpired reports whether the offer deadline has passed at now.
func (o Offer) IsExpired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// OfferSummary is an offer joined with the listed asset's public attributes.
type OfferSummary struct {
	Offer      Offer
	AssetName  string
	AssetLevel int
}

// Declination is a buyer's non-binding notice that they pass on an offer.
type Declination struct {
	ID        string
	OfferID   string
	BuyerID   string
	Reason    string
	CreatedAt time.Time
}
