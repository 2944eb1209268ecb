package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a post-commit trading event.
type EventType string

const (
	EventOfferCreated   EventType = "offer_created"
	EventOfferCancelled EventType = "offer_cancelled"
	EventOfferDeclined  EventType = "offer_declined"
	EventTradeCompleted EventType = "trade_completed"
)

// Event is an outbox entry written in the same transaction as the state
// change it describes.
type Event struct {
	ID          string
	Type        EventType
	AggregateID string
	PayloadJSON string
	CreatedAt   time.Time
}

// OfferEventPayload is the payload for offer lifecycle events.
type OfferEventPayload struct {
	OfferID   string     `json:"offer_id"`
	AssetID   string     `json:"asset_id"`
	SellerID  string     `json:"seller_id"`
	Price     string     `json:"price"`
	Currency  string     `json:"currency"`
	Platform  string     `json:"platform"`
	Status    string     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	BuyerID   string     `json:"buyer_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TradeEventPayload is the payload for trade_completed.
type TradeEventPayload struct {
	TradeID          string    `json:"trade_id"`
	OfferID          string    `json:"offer_id"`
	AssetID          string    `json:"asset_id"`
	BuyerID          string    `json:"buyer_id"`
	SellerID         string    `json:"seller_id"`
	Price            string    `json:"price"`
	Currency         string    `json:"currency"`
	PaymentProvider  string    `json:"payment_provider"`
	PaymentReference string    `json:"payment_reference"`
	CompletedAt      time.Time `json:"completed_at"`
}

func offerPayload(offer Offer) OfferEventPayload {
	return OfferEventPayload{
		OfferID:   offer.ID,
		AssetID:   offer.AssetID,
		SellerID:  offer.SellerID,
		Price:     FormatPrice(offer.Price),
		Currency:  offer.Currency,
		Platform:  string(offer.Platform),
		Status:    string(offer.Status),
		ExpiresAt: offer.ExpiresAt,
	}
}

// NewOfferCreatedEvent describes a newly listed offer.
func NewOfferCreatedEvent(eventID string, offer Offer, at time.Time) (Event, error) {
	return newEvent(eventID, EventOfferCreated, offer.ID, offerPayload(offer), at)
}

// NewOfferCancelledEvent describes a cancelled or expired offer.
func NewOfferCancelledEvent(eventID string, offer Offer, reason string, at time.Time) (Event, error) {
	payload := offerPayload(offer)
	payload.Reason = reason
	return newEvent(eventID, EventOfferCancelled, offer.ID, payload, at)
}

// NewOfferDeclinedEvent describes a buyer's declination notice.
func NewOfferDeclinedEvent(eventID string, offer Offer, declination Declination) (Event, error) {
	payload := offerPayload(offer)
	payload.BuyerID = declination.BuyerID
	payload.Reason = declination.Reason
	return newEvent(eventID, EventOfferDeclined, offer.ID, payload, declination.CreatedAt)
}

// NewTradeCompletedEvent describes a committed trade.
func NewTradeCompletedEvent(eventID string, trade Trade) (Event, error) {
	return newEvent(eventID, EventTradeCompleted, trade.OfferID, TradeEventPayload{
		TradeID:          trade.ID,
		OfferID:          trade.OfferID,
		AssetID:          trade.AssetID,
		BuyerID:          trade.BuyerID,
		SellerID:         trade.SellerID,
		Price:            FormatPrice(trade.Price),
		Currency:         trade.Currency,
		PaymentProvider:  trade.Payment.Provider,
		PaymentReference: trade.Payment.Reference,
		CompletedAt:      trade.CompletedAt,
	}, trade.CompletedAt)
}

func newEvent(eventID string, eventType EventType, aggregateID string, payload any, at time.Time) (Event, error) {
	if eventID == "" {
		return Event{}, fmt.Errorf("event id is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		ID:          eventID,
		Type:        eventType,
		AggregateID: aggregateID,
		PayloadJSON: string(data),
		CreatedAt:   at.UTC(),
	}, nil
}
