// Package storage defines persistence contracts for trading state.
//
// Every write that must be atomic with other writes goes through Tx. Status
// and lock changes are conditional updates; a lost condition surfaces as
// ErrPreconditionFailed rather than as a silent no-op.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness constraint rejected a write.
	ErrConflict = errors.New("record conflict")
	// ErrPreconditionFailed indicates a conditional update matched no row.
	ErrPreconditionFailed = errors.New("precondition failed")
)

// AssetDirectory is the accessor contract for the external asset directory.
type AssetDirectory interface {
	GetAsset(ctx context.Context, assetID string) (domain.Asset, error)
	PutAsset(ctx context.Context, asset domain.Asset) error
	CountAssetsByOwner(ctx context.Context, ownerID string) (int, error)
}

// LockTx is the subset of a transaction the lock manager needs.
type LockTx interface {
	GetAsset(ctx context.Context, assetID string) (domain.Asset, error)
	// AcquireAssetLock sets the lock only when the asset is unlocked and
	// reports whether a row changed.
	AcquireAssetLock(ctx context.Context, assetID, offerID string, at time.Time) (bool, error)
	// ReleaseAssetLock clears the lock only when offerID holds it and reports
	// whether a row changed.
	ReleaseAssetLock(ctx context.Context, assetID, offerID string, at time.Time) (bool, error)
}

// CooldownTx records trade completion times.
type CooldownTx interface {
	SetLastTradeCompletedAt(ctx context.Context, assetID string, at time.Time) error
}

// LedgerTx appends ownership records.
type LedgerTx interface {
	AppendOwnershipRecord(ctx context.Context, record domain.OwnershipRecord) (domain.OwnershipRecord, error)
}

// OfferTransition describes a conditional offer status change.
type OfferTransition struct {
	OfferID string
	From    domain.OfferStatus
	To      domain.OfferStatus
	At      time.Time
	// AcceptedBy is recorded when To is Accepted.
	AcceptedBy string
	// ExpectAcceptedBy scopes a transition out of Accepted to the buyer
	// holding the reservation.
	ExpectAcceptedBy string
	// NotExpiredAt requires the offer deadline to be absent or after this time.
	NotExpiredAt *time.Time
	// CancelReason is recorded when To is Cancelled.
	CancelReason string
}

// OwnershipTransfer moves an asset between owners and clears its lock.
type OwnershipTransfer struct {
	AssetID     string
	FromOwnerID string
	ToOwnerID   string
	OfferID     string
	At          time.Time
}

// Tx is one atomic unit of trading writes.
type Tx interface {
	LockTx
	CooldownTx
	LedgerTx

	GetOffer(ctx context.Context, offerID string) (domain.Offer, error)
	InsertOffer(ctx context.Context, offer domain.Offer) error
	// TransitionOffer applies t when the offer matches its conditions. On a
	// mismatch it returns the current offer with ErrPreconditionFailed.
	TransitionOffer(ctx context.Context, t OfferTransition) (domain.Offer, error)
	CountPendingOffersBySeller(ctx context.Context, sellerID string) (int, error)
	// TransferOwnership applies transfer when the asset is owned by
	// FromOwnerID and locked by OfferID, otherwise ErrPreconditionFailed.
	TransferOwnership(ctx context.Context, transfer OwnershipTransfer) error
	InsertTrade(ctx context.Context, trade domain.Trade) error
	InsertDeclination(ctx context.Context, declination domain.Declination) error
	EnqueueEvent(ctx context.Context, event domain.Event) error
}

// OfferQuery selects offers for listing. Prices are in minor units.
type OfferQuery struct {
	Statuses      []domain.OfferStatus
	SellerID      string
	Platform      domain.Platform
	MinPriceMinor *int64
	MaxPriceMinor *int64
	MinLevel      *int
	MaxLevel      *int
	// FilterClause is an extra SQL condition over offer columns, built by the
	// filter package, with FilterParams as its positional parameters.
	FilterClause string
	FilterParams []any
	OrderBy      string
	Limit        int
	Offset       int
}

// Reader serves reads. It may be backed by a replica.
type Reader interface {
	GetAsset(ctx context.Context, assetID string) (domain.Asset, error)
	GetOffer(ctx context.Context, offerID string) (domain.Offer, error)
	ListOffers(ctx context.Context, query OfferQuery) ([]domain.OfferSummary, error)
	ListExpiredPendingOffers(ctx context.Context, now time.Time, limit int) ([]domain.Offer, error)
	CountAssetsByOwner(ctx context.Context, ownerID string) (int, error)
	GetTradeByOffer(ctx context.Context, offerID string) (domain.Trade, error)
	ListOwnershipRecords(ctx context.Context, assetID string) ([]domain.OwnershipRecord, error)
	LatestOwnershipRecord(ctx context.Context, assetID string) (domain.OwnershipRecord, error)
	ListDeclinations(ctx context.Context, offerID string) ([]domain.Declination, error)
}

// Outbox delivery statuses.
const (
	OutboxPending   = "pending"
	OutboxDelivered = "delivered"
	OutboxDead      = "dead"
)

// Outbox ack outcomes.
const (
	AckSucceeded = "succeeded"
	AckRetry     = "retry"
	AckDead      = "dead"
)

// OutboxEvent is a stored event with delivery bookkeeping.
type OutboxEvent struct {
	domain.Event
	Status         string
	AttemptCount   int
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	LastError      string
	UpdatedAt      time.Time
}

// AckInput reports a delivery attempt for a leased event.
type AckInput struct {
	EventID       string
	Consumer      string
	Outcome       string
	NextAttemptAt time.Time
	LastError     string
	At            time.Time
}

// OutboxStore hands events to delivery workers.
type OutboxStore interface {
	// LeaseEvents claims up to limit due events for consumer until now+ttl.
	LeaseEvents(ctx context.Context, consumer string, limit int, ttl time.Duration, now time.Time) ([]OutboxEvent, error)
	// AckEvent settles a lease held by consumer. It returns
	// ErrPreconditionFailed when the lease is not held.
	AckEvent(ctx context.Context, input AckInput) error
	GetOutboxEvent(ctx context.Context, eventID string) (OutboxEvent, error)
}

// Store is the primary trading store.
type Store interface {
	AssetDirectory
	Reader
	OutboxStore

	// WithTx runs fn in one write transaction. fn's error rolls it back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// ReadReplica returns a reader backed by read-only connections.
	ReadReplica() Reader
}
