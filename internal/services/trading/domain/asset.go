package domain

import "time"

// Asset is a tradable cat as seen by the trading engine. The asset directory
// owns every other attribute; trading only mutates OwnerID, LockOfferID and
// LastTradeCompletedAt.
type Asset struct {
	ID                   string
	OwnerID              string
	Name                 string
	Level                int
	LockOfferID          string
	LastTradeCompletedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsLocked reports whether an offer holds the asset lock.
func (a Asset) IsLocked() bool {
	return a.LockOfferID != ""
}

// LockedBy reports whether offerID holds the asset lock.
func (a Asset) LockedBy(offerID string) bool {
	return offerID != "" && a.LockOfferID == offerID
}

// LockState is a read model of an asset lock.
type LockState struct {
	AssetID string
	OfferID string
}

// Locked reports whether the lock is held.
func (s LockState) Locked() bool {
	return s.OfferID != ""
}
