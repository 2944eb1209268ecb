// Package acceptance resolves concurrent accepts of one offer and completes
// the winning trade atomically.
//
// The Pending to Accepted status change is the only serialization point: it
// is a conditional update, so exactly one buyer wins and everyone else fails
// without side effects. The Accepted status is the persisted reservation; no
// lock or transaction is held while the settlement collaborator is called.
package acceptance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/catmarket/internal/platform/id"
	"github.com/louisbranch/catmarket/internal/platform/telemetry/metrics"
	"github.com/louisbranch/catmarket/internal/platform/timeouts"
	"github.com/louisbranch/catmarket/internal/services/trading/cooldown"
	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/ledger"
	"github.com/louisbranch/catmarket/internal/services/trading/settlement"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
	"github.com/rs/zerolog"
)

// Config wires a Coordinator.
type Config struct {
	Store    storage.Store
	Settler  settlement.Settler
	Cooldown *cooldown.Tracker
	Ledger   *ledger.Ledger
	Policy   domain.Policy
	Clock    func() time.Time
	NewID    func() (string, error)
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Coordinator runs the accept transaction.
type Coordinator struct {
	store    storage.Store
	settler  settlement.Settler
	cooldown *cooldown.Tracker
	ledger   *ledger.Ledger
	policy   domain.Policy
	clock    func() time.Time
	newID    func() (string, error)
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewCoordinator validates cfg and builds a coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("acceptance store is required")
	}
	if cfg.Settler == nil {
		return nil, fmt.Errorf("settler is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("acceptance policy: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	if cfg.Cooldown == nil {
		cfg.Cooldown = cooldown.NewTracker(cfg.Store, cfg.Policy.Cooldown)
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New(cfg.Store)
	}
	return &Coordinator{
		store:    cfg.Store,
		settler:  cfg.Settler,
		cooldown: cfg.Cooldown,
		ledger:   cfg.Ledger,
		policy:   cfg.Policy,
		clock:    cfg.Clock,
		newID:    cfg.NewID,
		logger:   cfg.Logger.With().Str("component", "acceptance").Logger(),
		metrics:  cfg.Metrics,
	}, nil
}

// AcceptOffer buys offerID for buyerID. On success the asset belongs to the
// buyer, the offer is Completed, and the trade and ledger record exist.
func (c *Coordinator) AcceptOffer(ctx context.Context, buyerID, offerID string) (domain.TradeResult, error) {
	buyerID = strings.TrimSpace(buyerID)
	offerID = strings.TrimSpace(offerID)
	if buyerID == "" {
		return domain.TradeResult{}, domain.ValidationError("buyer id is required")
	}
	if offerID == "" {
		return domain.TradeResult{}, domain.ValidationError("offer id is required")
	}
	log := c.logger.With().Str("offer_id", offerID).Str("buyer_id", buyerID).Logger()

	offer, err := c.reserve(ctx, buyerID, offerID)
	if err != nil {
		if errors.Is(err, domain.ErrOfferNoLongerAvailable) {
			c.metrics.AcceptOutcome(metrics.AcceptRaceLost)
		} else {
			c.metrics.AcceptOutcome(metrics.AcceptRejected)
		}
		return domain.TradeResult{}, err
	}

	// From here on this call owns the reservation and must leave the offer in
	// Completed, Pending or Disputed, even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if err := c.revalidate(ctx, buyerID, offer); err != nil {
		c.metrics.AcceptOutcome(metrics.AcceptReverted)
		log.Info().Err(err).Msg("accept re-validation failed; offer reverted")
		return domain.TradeResult{}, c.revertOrWrap(ctx, offer, buyerID, err)
	}

	tradeID, err := c.newID()
	if err != nil {
		return domain.TradeResult{}, c.revertOrWrap(ctx, offer, buyerID, domain.InternalError("generate trade id", err))
	}
	payment, err := c.settle(ctx, settlement.Request{
		IdempotencyKey: tradeID,
		PayerID:        buyerID,
		PayeeID:        offer.SellerID,
		Amount:         offer.Price,
		Currency:       offer.Currency,
	})
	if err != nil {
		if settlement.IsDeclined(err) {
			c.metrics.AcceptOutcome(metrics.AcceptSettlementFail)
			log.Warn().Err(err).Str("trade_id", tradeID).Msg("settlement declined; offer reverted")
			return domain.TradeResult{}, c.revertOrWrap(ctx, offer, buyerID, domain.SettlementFailedError(offerID, err))
		}
		return domain.TradeResult{}, c.unwindSettlement(ctx, log, offer, buyerID, tradeID, err)
	}

	trade, err := c.commit(ctx, offer, buyerID, tradeID, payment)
	if err != nil {
		return domain.TradeResult{}, c.compensate(ctx, log, offer, buyerID, tradeID, err)
	}

	c.metrics.AcceptOutcome(metrics.AcceptCompleted)
	log.Info().
		Str("trade_id", trade.ID).
		Str("asset_id", trade.AssetID).
		Str("seller_id", trade.SellerID).
		Str("price", domain.FormatPrice(trade.Price)).
		Msg("trade completed")
	return trade.Result(), nil
}

// reserve moves the offer from Pending to Accepted for buyerID.
func (c *Coordinator) reserve(ctx context.Context, buyerID, offerID string) (domain.Offer, error) {
	now := c.now()
	var reserved domain.Offer
	err := c.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		offer, err := tx.TransitionOffer(ctx, storage.OfferTransition{
			OfferID:      offerID,
			From:         domain.OfferPending,
			To:           domain.OfferAccepted,
			At:           now,
			AcceptedBy:   buyerID,
			NotExpiredAt: &now,
		})
		switch {
		case err == nil:
			reserved = offer
			return nil
		case errors.Is(err, storage.ErrNotFound):
			return domain.NotFoundError("offer", offerID)
		case errors.Is(err, storage.ErrPreconditionFailed):
			return lostReservation(offer)
		default:
			return domain.InternalError("reserve offer", err)
		}
	})
	if err != nil {
		return domain.Offer{}, domain.EnsureCoded(err, "reserve offer")
	}
	return reserved, nil
}

// lostReservation classifies a failed Pending to Accepted update by the
// offer's current state.
func lostReservation(current domain.Offer) error {
	switch current.Status {
	case domain.OfferAccepted, domain.OfferCompleted:
		return domain.OfferNoLongerAvailableError(current.ID)
	case domain.OfferPending:
		// Still Pending but past its deadline; expiry will cancel it.
		return domain.OfferNoLongerAvailableError(current.ID)
	default:
		return domain.WrongStateError(current.ID, current.Status)
	}
}

// revalidate checks the buyer and the asset after winning the reservation.
func (c *Coordinator) revalidate(ctx context.Context, buyerID string, offer domain.Offer) error {
	if buyerID == offer.SellerID {
		return domain.ValidationError("sellers cannot accept their own offer")
	}
	owned, err := c.store.CountAssetsByOwner(ctx, buyerID)
	if err != nil {
		return domain.InternalError("count buyer assets", err)
	}
	if owned >= c.policy.MaxAssetsPerBuyer {
		return domain.BuyerAssetLimitError(buyerID, c.policy.MaxAssetsPerBuyer)
	}
	canPay, err := c.settler.CanPay(ctx, buyerID, offer.Price, offer.Currency)
	if err != nil {
		return domain.SettlementFailedError(offer.ID, err)
	}
	if !canPay {
		return domain.InsufficientFundsError(buyerID, offer.Currency)
	}
	asset, err := c.store.GetAsset(ctx, offer.AssetID)
	if err != nil {
		return domain.InternalError("read traded asset", err)
	}
	if asset.OwnerID != offer.SellerID || !asset.LockedBy(offer.ID) {
		return domain.InternalError("asset integrity violation",
			fmt.Errorf("asset %s owner %q lock %q does not match offer %s", asset.ID, asset.OwnerID, asset.LockOfferID, offer.ID))
	}
	return nil
}

func (c *Coordinator) settle(ctx context.Context, req settlement.Request) (domain.PaymentResult, error) {
	settleCtx, cancel := context.WithTimeout(ctx, timeouts.Settlement)
	defer cancel()

	start := time.Now()
	result, err := c.settler.Settle(settleCtx, req)
	c.metrics.ObserveSettlement(time.Since(start), err == nil)
	if err != nil {
		return domain.PaymentResult{}, err
	}
	settledAt := result.SettledAt
	if settledAt.IsZero() {
		settledAt = c.now()
	}
	return domain.PaymentResult{
		Provider:  result.Provider,
		Reference: result.Reference,
		SettledAt: settledAt.UTC(),
	}, nil
}

// commit applies every completion write in one transaction.
func (c *Coordinator) commit(ctx context.Context, offer domain.Offer, buyerID, tradeID string, payment domain.PaymentResult) (domain.Trade, error) {
	eventID, err := c.newID()
	if err != nil {
		return domain.Trade{}, domain.InternalError("generate event id", err)
	}
	now := c.now()
	trade := domain.Trade{
		ID:          tradeID,
		OfferID:     offer.ID,
		AssetID:     offer.AssetID,
		BuyerID:     buyerID,
		SellerID:    offer.SellerID,
		Status:      domain.TradeCompleted,
		Price:       offer.Price,
		Currency:    offer.Currency,
		Payment:     payment,
		CreatedAt:   now,
		CompletedAt: now,
	}

	err = c.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.TransitionOffer(ctx, storage.OfferTransition{
			OfferID:          offer.ID,
			From:             domain.OfferAccepted,
			To:               domain.OfferCompleted,
			At:               now,
			ExpectAcceptedBy: buyerID,
		}); err != nil {
			return fmt.Errorf("complete offer: %w", err)
		}
		if err := tx.TransferOwnership(ctx, storage.OwnershipTransfer{
			AssetID:     offer.AssetID,
			FromOwnerID: offer.SellerID,
			ToOwnerID:   buyerID,
			OfferID:     offer.ID,
			At:          now,
		}); err != nil {
			return fmt.Errorf("transfer ownership: %w", err)
		}
		if err := c.cooldown.OnTradeCompleted(ctx, tx, offer.AssetID, now); err != nil {
			return err
		}
		if _, err := c.ledger.Append(ctx, tx, domain.OwnershipRecord{
			AssetID:         offer.AssetID,
			PreviousOwnerID: offer.SellerID,
			NewOwnerID:      buyerID,
			Reason:          domain.OwnershipReasonTrade,
			TradeID:         tradeID,
			Timestamp:       now,
		}); err != nil {
			return err
		}
		if err := tx.InsertTrade(ctx, trade); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		event, err := domain.NewTradeCompletedEvent(eventID, trade)
		if err != nil {
			return fmt.Errorf("build trade completed event: %w", err)
		}
		if err := tx.EnqueueEvent(ctx, event); err != nil {
			return fmt.Errorf("enqueue trade completed event: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Trade{}, err
	}
	return trade, nil
}

// unwindSettlement handles a Settle failure that may still have moved funds.
// The trade is refunded before the offer goes back to Pending; an unknown
// settlement means nothing was charged.
func (c *Coordinator) unwindSettlement(ctx context.Context, log zerolog.Logger, offer domain.Offer, buyerID, tradeID string, settleErr error) error {
	refundErr := c.refund(ctx, tradeID)
	if refundErr == nil || errors.Is(refundErr, settlement.ErrUnknownSettlement) {
		c.metrics.AcceptOutcome(metrics.AcceptSettlementFail)
		log.Warn().
			Err(settleErr).
			Str("trade_id", tradeID).
			Bool("refunded", refundErr == nil).
			Msg("settlement failed; offer reverted")
		return c.revertOrWrap(ctx, offer, buyerID, domain.SettlementFailedError(offer.ID, settleErr))
	}
	return c.dispute(ctx, log, offer, buyerID, tradeID, settleErr, refundErr)
}

// compensate undoes a settlement whose commit failed.
func (c *Coordinator) compensate(ctx context.Context, log zerolog.Logger, offer domain.Offer, buyerID, tradeID string, commitErr error) error {
	refundErr := c.refund(ctx, tradeID)
	if refundErr == nil {
		c.metrics.AcceptOutcome(metrics.AcceptReverted)
		log.Error().Err(commitErr).Str("trade_id", tradeID).Msg("trade commit failed; settlement refunded")
		return c.revertOrWrap(ctx, offer, buyerID, domain.InternalError("commit trade", commitErr))
	}
	return c.dispute(ctx, log, offer, buyerID, tradeID, commitErr, refundErr)
}

func (c *Coordinator) refund(ctx context.Context, tradeID string) error {
	refundCtx, cancel := context.WithTimeout(ctx, timeouts.Settlement)
	defer cancel()
	return c.settler.Refund(refundCtx, tradeID)
}

// dispute parks the offer in Disputed for manual resolution when funds may
// have moved and could not be returned.
func (c *Coordinator) dispute(ctx context.Context, log zerolog.Logger, offer domain.Offer, buyerID, tradeID string, cause, refundErr error) error {
	c.metrics.AcceptOutcome(metrics.AcceptDisputed)
	log.Error().
		Err(cause).
		AnErr("refund_error", refundErr).
		Str("trade_id", tradeID).
		Msg("refund failed; offer disputed")
	joined := errors.Join(cause, refundErr)
	if err := c.transitionReservation(ctx, offer, buyerID, domain.OfferDisputed); err != nil {
		joined = errors.Join(joined, err)
	}
	return domain.InternalError(fmt.Sprintf("trade %s needs manual resolution", tradeID), joined)
}

// revertOrWrap returns the reservation to Pending and reports cause. A failed
// revert is folded into an internal error since the offer stays Accepted.
func (c *Coordinator) revertOrWrap(ctx context.Context, offer domain.Offer, buyerID string, cause error) error {
	if err := c.transitionReservation(ctx, offer, buyerID, domain.OfferPending); err != nil {
		c.logger.Error().Err(err).Str("offer_id", offer.ID).Msg("revert accepted offer failed")
		return domain.InternalError("revert accepted offer", errors.Join(cause, err))
	}
	return cause
}

// transitionReservation moves an offer out of Accepted while buyerID still
// holds it. The asset lock is left in place.
func (c *Coordinator) transitionReservation(ctx context.Context, offer domain.Offer, buyerID string, to domain.OfferStatus) error {
	now := c.now()
	return c.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.TransitionOffer(ctx, storage.OfferTransition{
			OfferID:          offer.ID,
			From:             domain.OfferAccepted,
			To:               to,
			At:               now,
			ExpectAcceptedBy: buyerID,
		})
		return err
	})
}

func (c *Coordinator) now() time.Time {
	return c.clock().UTC()
}
