// Package offer manages the lifecycle of sale offers: creation, seller
// cancellation, buyer declination, deadline expiry and listing.
//
// Every state change runs in one storage transaction together with the asset
// lock update and the outbox event it produces, so an offer is Pending iff it
// holds its asset's lock.
package offer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/louisbranch/catmarket/internal/platform/id"
	"github.com/louisbranch/catmarket/internal/platform/telemetry/metrics"
	"github.com/louisbranch/catmarket/internal/services/trading/cooldown"
	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/ledger"
	"github.com/louisbranch/catmarket/internal/services/trading/lock"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
	"github.com/rs/zerolog"
)

// MaxDeclineReasonLength caps the free-form reason on a declination, in runes.
const MaxDeclineReasonLength = 500

const defaultExpireBatchSize = 100

// Config wires a Registry.
type Config struct {
	Store    storage.Store
	Locks    *lock.Manager
	Cooldown *cooldown.Tracker
	Ledger   *ledger.Ledger
	Policy   domain.Policy
	Clock    func() time.Time
	NewID    func() (string, error)
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Registry creates, cancels, declines, expires and lists offers.
type Registry struct {
	store    storage.Store
	locks    *lock.Manager
	cooldown *cooldown.Tracker
	ledger   *ledger.Ledger
	policy   domain.Policy
	clock    func() time.Time
	newID    func() (string, error)
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewRegistry validates cfg and builds a registry. Missing optional
// collaborators get defaults derived from the store and policy.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("offer store is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("offer policy: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	if cfg.Locks == nil {
		cfg.Locks = lock.NewManager(cfg.Clock)
	}
	if cfg.Cooldown == nil {
		cfg.Cooldown = cooldown.NewTracker(cfg.Store, cfg.Policy.Cooldown)
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New(cfg.Store)
	}
	return &Registry{
		store:    cfg.Store,
		locks:    cfg.Locks,
		cooldown: cfg.Cooldown,
		ledger:   cfg.Ledger,
		policy:   cfg.Policy,
		clock:    cfg.Clock,
		newID:    cfg.NewID,
		logger:   cfg.Logger.With().Str("component", "offer_registry").Logger(),
		metrics:  cfg.Metrics,
	}, nil
}

// CreateOffer lists assetID for sale by sellerID under terms. Two concurrent
// creates for one asset resolve to exactly one Pending offer.
func (r *Registry) CreateOffer(ctx context.Context, sellerID, assetID string, terms domain.OfferTerms) (domain.Offer, error) {
	sellerID = strings.TrimSpace(sellerID)
	assetID = strings.TrimSpace(assetID)
	if sellerID == "" {
		return domain.Offer{}, domain.ValidationError("seller id is required")
	}
	if assetID == "" {
		return domain.Offer{}, domain.ValidationError("asset id is required")
	}
	if terms.IsZero() {
		return domain.Offer{}, domain.ValidationError("offer terms are required")
	}
	if err := domain.ValidatePrice(terms.Price()); err != nil {
		return domain.Offer{}, err
	}
	now := r.now()
	expiresAt := terms.ExpiresAt()
	if expiresAt != nil && !expiresAt.After(now) {
		return domain.Offer{}, domain.ValidationError("deadline must be in the future")
	}

	offerID, err := r.newID()
	if err != nil {
		return domain.Offer{}, domain.InternalError("generate offer id", err)
	}
	eventID, err := r.newID()
	if err != nil {
		return domain.Offer{}, domain.InternalError("generate event id", err)
	}

	offer := domain.Offer{
		ID:                   offerID,
		AssetID:              assetID,
		SellerID:             sellerID,
		Price:                terms.Price(),
		Currency:             terms.Currency(),
		Platform:             terms.Platform(),
		Status:               domain.OfferPending,
		AcceptsCounterOffers: terms.AcceptsCounterOffers(),
		SpecialRequirements:  terms.SpecialRequirements(),
		ExpiresAt:            expiresAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = r.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		asset, err := tx.GetAsset(ctx, assetID)
		if errors.Is(err, storage.ErrNotFound) {
			return domain.NotFoundError("asset", assetID)
		}
		if err != nil {
			return domain.InternalError("read asset", err)
		}
		if asset.OwnerID != sellerID {
			return domain.NotOwnerError(assetID, sellerID)
		}
		if asset.Level < r.policy.MinTradeLevel {
			return domain.ValidationError("asset level %d is below the minimum trade level %d", asset.Level, r.policy.MinTradeLevel)
		}
		if asset.IsLocked() {
			return domain.AssetLockedError(assetID)
		}
		if cooling, until := r.cooldown.Check(asset, now); cooling {
			return domain.CooldownActiveError(assetID, until)
		}
		active, err := tx.CountPendingOffersBySeller(ctx, sellerID)
		if err != nil {
			return domain.InternalError("count active offers", err)
		}
		if active >= r.policy.MaxActiveOffersPerSeller {
			return domain.OfferLimitExceededError(sellerID, r.policy.MaxActiveOffersPerSeller)
		}

		if err := tx.InsertOffer(ctx, offer); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return domain.AssetLockedError(assetID)
			}
			return domain.InternalError("insert offer", err)
		}
		if err := r.locks.AcquireLock(ctx, tx, assetID, offerID); err != nil {
			if errors.Is(err, domain.ErrAlreadyLocked) {
				return domain.AssetLockedError(assetID)
			}
			return err
		}
		event, err := domain.NewOfferCreatedEvent(eventID, offer, now)
		if err != nil {
			return domain.InternalError("build offer created event", err)
		}
		if err := tx.EnqueueEvent(ctx, event); err != nil {
			return domain.InternalError("enqueue offer created event", err)
		}
		return nil
	})
	if err != nil {
		return domain.Offer{}, domain.EnsureCoded(err, "create offer")
	}

	r.metrics.OfferCreated()
	r.logger.Info().
		Str("offer_id", offer.ID).
		Str("asset_id", assetID).
		Str("seller_id", sellerID).
		Str("price", domain.FormatPrice(offer.Price)).
		Str("currency", offer.Currency).
		Msg("offer created")
	return offer, nil
}

// CancelOffer withdraws a Pending offer and releases its asset. A second
// cancel fails with a wrong-state error and changes nothing.
func (r *Registry) CancelOffer(ctx context.Context, sellerID, offerID string) (domain.Offer, error) {
	sellerID = strings.TrimSpace(sellerID)
	offerID = strings.TrimSpace(offerID)
	if sellerID == "" {
		return domain.Offer{}, domain.ValidationError("seller id is required")
	}
	if offerID == "" {
		return domain.Offer{}, domain.ValidationError("offer id is required")
	}
	eventID, err := r.newID()
	if err != nil {
		return domain.Offer{}, domain.InternalError("generate event id", err)
	}
	now := r.now()

	var cancelled domain.Offer
	err = r.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		offer, err := r.loadOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.SellerID != sellerID {
			return domain.UnauthorizedError("only the seller may cancel offer %s", offerID)
		}
		if offer.Status != domain.OfferPending {
			return domain.WrongStateError(offerID, offer.Status)
		}
		cancelled, err = r.cancelPending(ctx, tx, offer, domain.CancelReasonSeller, eventID, now)
		return err
	})
	if err != nil {
		return domain.Offer{}, domain.EnsureCoded(err, "cancel offer")
	}

	r.metrics.OfferCancelled(domain.CancelReasonSeller)
	r.logger.Info().Str("offer_id", offerID).Str("seller_id", sellerID).Msg("offer cancelled")
	return cancelled, nil
}

// RejectOffer records that buyerID declined a Pending offer. Offers are public
// and accepted first-come, so a declination is a notice to the seller and does
// not change the offer's status.
func (r *Registry) RejectOffer(ctx context.Context, buyerID, offerID, reason string) (domain.Declination, error) {
	buyerID = strings.TrimSpace(buyerID)
	offerID = strings.TrimSpace(offerID)
	reason = strings.TrimSpace(reason)
	if buyerID == "" {
		return domain.Declination{}, domain.ValidationError("buyer id is required")
	}
	if offerID == "" {
		return domain.Declination{}, domain.ValidationError("offer id is required")
	}
	if utf8.RuneCountInString(reason) > MaxDeclineReasonLength {
		return domain.Declination{}, domain.ValidationError("reason exceeds %d characters", MaxDeclineReasonLength)
	}
	declinationID, err := r.newID()
	if err != nil {
		return domain.Declination{}, domain.InternalError("generate declination id", err)
	}
	eventID, err := r.newID()
	if err != nil {
		return domain.Declination{}, domain.InternalError("generate event id", err)
	}
	declination := domain.Declination{
		ID:        declinationID,
		OfferID:   offerID,
		BuyerID:   buyerID,
		Reason:    reason,
		CreatedAt: r.now(),
	}

	err = r.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		offer, err := r.loadOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.Status != domain.OfferPending {
			return domain.WrongStateError(offerID, offer.Status)
		}
		if offer.SellerID == buyerID {
			return domain.ValidationError("sellers cannot decline their own offer")
		}
		if err := tx.InsertDeclination(ctx, declination); err != nil {
			return domain.InternalError("insert declination", err)
		}
		event, err := domain.NewOfferDeclinedEvent(eventID, offer, declination)
		if err != nil {
			return domain.InternalError("build offer declined event", err)
		}
		if err := tx.EnqueueEvent(ctx, event); err != nil {
			return domain.InternalError("enqueue offer declined event", err)
		}
		return nil
	})
	if err != nil {
		return domain.Declination{}, domain.EnsureCoded(err, "reject offer")
	}
	r.logger.Info().Str("offer_id", offerID).Str("buyer_id", buyerID).Msg("offer declined")
	return declination, nil
}

// ExpireResult summarizes one expiry sweep.
type ExpireResult struct {
	Scanned int
	Expired int
	// Skipped counts offers another actor moved out of Pending first.
	Skipped int
}

var errExpirySkipped = errors.New("offer left pending before expiry")

// ExpireOffers cancels up to batchSize Pending offers whose deadline is at or
// before now. Sweeps are idempotent and may run concurrently.
func (r *Registry) ExpireOffers(ctx context.Context, now time.Time, batchSize int) (ExpireResult, error) {
	if batchSize <= 0 {
		batchSize = defaultExpireBatchSize
	}
	if now.IsZero() {
		now = r.now()
	}
	now = now.UTC()

	due, err := r.store.ListExpiredPendingOffers(ctx, now, batchSize)
	if err != nil {
		return ExpireResult{}, domain.InternalError("list expired offers", err)
	}
	result := ExpireResult{Scanned: len(due)}
	for _, candidate := range due {
		eventID, err := r.newID()
		if err != nil {
			return result, domain.InternalError("generate event id", err)
		}
		err = r.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			_, err := r.cancelPending(ctx, tx, candidate, domain.CancelReasonExpired, eventID, now)
			if errors.Is(err, domain.ErrWrongState) {
				return errExpirySkipped
			}
			return err
		})
		switch {
		case err == nil:
			result.Expired++
			r.metrics.OfferCancelled(domain.CancelReasonExpired)
			r.logger.Info().Str("offer_id", candidate.ID).Str("asset_id", candidate.AssetID).Msg("offer expired")
		case errors.Is(err, errExpirySkipped):
			result.Skipped++
		default:
			return result, domain.EnsureCoded(err, "expire offer")
		}
	}
	return result, nil
}

// cancelPending moves offer from Pending to Cancelled, releases its lock and
// enqueues the cancellation event. A lost CAS yields a wrong-state error.
func (r *Registry) cancelPending(ctx context.Context, tx storage.Tx, offer domain.Offer, reason, eventID string, now time.Time) (domain.Offer, error) {
	cancelled, err := tx.TransitionOffer(ctx, storage.OfferTransition{
		OfferID:      offer.ID,
		From:         domain.OfferPending,
		To:           domain.OfferCancelled,
		At:           now,
		CancelReason: reason,
	})
	if errors.Is(err, storage.ErrPreconditionFailed) {
		return domain.Offer{}, domain.WrongStateError(offer.ID, cancelled.Status)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Offer{}, domain.NotFoundError("offer", offer.ID)
	}
	if err != nil {
		return domain.Offer{}, domain.InternalError("cancel offer", err)
	}
	if err := r.locks.ReleaseLock(ctx, tx, cancelled.AssetID, cancelled.ID); err != nil {
		return domain.Offer{}, err
	}
	event, err := domain.NewOfferCancelledEvent(eventID, cancelled, reason, now)
	if err != nil {
		return domain.Offer{}, domain.InternalError("build offer cancelled event", err)
	}
	if err := tx.EnqueueEvent(ctx, event); err != nil {
		return domain.Offer{}, domain.InternalError("enqueue offer cancelled event", err)
	}
	return cancelled, nil
}

// GetOffer reads an offer from the primary store.
func (r *Registry) GetOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return domain.Offer{}, domain.ValidationError("offer id is required")
	}
	return r.loadOffer(ctx, r.store, offerID)
}

// GetOwnershipHistory returns the ledger for assetID, oldest first.
func (r *Registry) GetOwnershipHistory(ctx context.Context, assetID string) ([]domain.OwnershipRecord, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, domain.ValidationError("asset id is required")
	}
	if _, err := r.store.GetAsset(ctx, assetID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFoundError("asset", assetID)
		}
		return nil, domain.InternalError("read asset", err)
	}
	return r.ledger.History(ctx, assetID)
}

// ListDeclinations returns the declination notices recorded for offerID.
func (r *Registry) ListDeclinations(ctx context.Context, offerID string) ([]domain.Declination, error) {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return nil, domain.ValidationError("offer id is required")
	}
	declinations, err := r.store.ListDeclinations(ctx, offerID)
	if err != nil {
		return nil, domain.InternalError("list declinations", err)
	}
	return declinations, nil
}

type offerGetter interface {
	GetOffer(ctx context.Context, offerID string) (domain.Offer, error)
}

func (r *Registry) loadOffer(ctx context.Context, getter offerGetter, offerID string) (domain.Offer, error) {
	offer, err := getter.GetOffer(ctx, offerID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Offer{}, domain.NotFoundError("offer", offerID)
	}
	if err != nil {
		return domain.Offer{}, domain.InternalError("read offer", err)
	}
	return offer, nil
}

func (r *Registry) now() time.Time {
	return r.clock().UTC()
}
