package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is the state of a trade record. Trades are only written once
// settlement and ownership transfer succeeded.
type TradeStatus string

// TradeCompleted is the only persisted trade status.
const TradeCompleted TradeStatus = "completed"

// PaymentResult records the settlement that paid for a trade.
type PaymentResult struct {
	Provider  string
	Reference string
	SettledAt time.Time
}

// Trade is the durable record of a completed acceptance.
type Trade struct {
	ID          string
	OfferID     string
	AssetID     string
	BuyerID     string
	SellerID    string
	Status      TradeStatus
	Price       decimal.Decimal
	Currency    string
	Payment     PaymentResult
	CreatedAt   time.Time
	CompletedAt time.Time
}

// TradeResult is returned to a buyer whose acceptance completed.
type TradeResult struct {
	TradeID     string
	OfferID     string
	AssetID     string
	BuyerID     string
	SellerID    string
	Price       decimal.Decimal
	Currency    string
	CompletedAt time.Time
}

// Result summarizes the trade for callers.
func (t Trade) Result() TradeResult {
	return TradeResult{
		TradeID:     t.ID,
		OfferID:     t.OfferID,
		AssetID:     t.AssetID,
		BuyerID:     t.BuyerID,
		SellerID:    t.SellerID,
		Price:       t.Price,
		Currency:    t.Currency,
		CompletedAt: t.CompletedAt,
	}
}
