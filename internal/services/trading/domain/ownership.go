package domain

import (
	"strings"
	"time"
)

// Ownership change reasons.
const (
	OwnershipReasonTrade   = "trade"
	OwnershipReasonGenesis = "genesis"
)

// OwnershipRecord is one append-only entry of an asset's ownership history.
// Seq is assigned by storage and increases monotonically across all assets.
type OwnershipRecord struct {
	Seq             int64
	AssetID         string
	PreviousOwnerID string
	NewOwnerID      string
	Reason          string
	TradeID         string
	Timestamp       time.Time
}

// Validate checks the fields required before appending.
func (r OwnershipRecord) Validate() error {
	if strings.TrimSpace(r.AssetID) == "" {
		return ValidationError("ownership record asset id is required")
	}
	if strings.TrimSpace(r.NewOwnerID) == "" {
		return ValidationError("ownership record new owner is required")
	}
	if r.PreviousOwnerID == r.NewOwnerID {
		return ValidationError("ownership record must change owner")
	}
	switch r.Reason {
	case OwnershipReasonTrade:
		if strings.TrimSpace(r.TradeID) == "" || strings.TrimSpace(r.PreviousOwnerID) == "" {
			return ValidationError("trade ownership record needs trade id and previous owner")
		}
	case OwnershipReasonGenesis:
	default:
		return ValidationError("ownership reason %q is not recognized", r.Reason)
	}
	if r.Timestamp.IsZero() {
		return ValidationError("ownership record timestamp is required")
	}
	return nil
}
