// Package tradingv1 defines the catmarket.trading.v1 wire contract: request
// and response messages and the TradingService gRPC descriptors.
//
// Messages are plain structs carried by the JSON codec registered in
// internal/platform/grpc. Prices travel as decimal strings with two fraction
// digits; times are RFC 3339.
package tradingv1

import "time"

// Offer is a sale listing.
type Offer struct {
	ID                   string     `json:"id"`
	AssetID              string     `json:"asset_id"`
	SellerID             string     `json:"seller_id"`
	Price                string     `json:"price"`
	Currency             string     `json:"currency"`
	Platform             string     `json:"platform"`
	Status               string     `json:"status"`
	AcceptsCounterOffers bool       `json:"accepts_counter_offers"`
	SpecialRequirements  string     `json:"special_requirements,omitempty"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	AcceptedBy           string     `json:"accepted_by,omitempty"`
	CancelReason         string     `json:"cancel_reason,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// OfferSummary is an offer with the listed asset's display fields.
type OfferSummary struct {
	Offer      Offer  `json:"offer"`
	AssetName  string `json:"asset_name"`
	AssetLevel int32  `json:"asset_level"`
}

// Declination is a buyer's notice that they will not take an offer.
type Declination struct {
	ID        string    `json:"id"`
	OfferID   string    `json:"offer_id"`
	BuyerID   string    `json:"buyer_id"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TradeResult describes a completed trade.
type TradeResult struct {
	TradeID     string    `json:"trade_id"`
	OfferID     string    `json:"offer_id"`
	AssetID     string    `json:"asset_id"`
	BuyerID     string    `json:"buyer_id"`
	SellerID    string    `json:"seller_id"`
	Price       string    `json:"price"`
	Currency    string    `json:"currency"`
	CompletedAt time.Time `json:"completed_at"`
}

// OwnershipRecord is one ledger entry.
type OwnershipRecord struct {
	Seq             int64     `json:"seq"`
	AssetID         string    `json:"asset_id"`
	PreviousOwnerID string    `json:"previous_owner_id,omitempty"`
	NewOwnerID      string    `json:"new_owner_id"`
	Reason          string    `json:"reason"`
	TradeID         string    `json:"trade_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// OutboxEvent is a leased domain event.
type OutboxEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	AggregateID    string    `json:"aggregate_id"`
	PayloadJSON    string    `json:"payload_json"`
	CreatedAt      time.Time `json:"created_at"`
	AttemptCount   int32     `json:"attempt_count"`
	LeaseExpiresAt time.Time `json:"lease_expires_at"`
}

type CreateOfferRequest struct {
	AssetID              string     `json:"asset_id"`
	Price                string     `json:"price"`
	Currency             string     `json:"currency"`
	Platform             string     `json:"platform"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	AcceptsCounterOffers bool       `json:"accepts_counter_offers,omitempty"`
	SpecialRequirements  string     `json:"special_requirements,omitempty"`
}

type CreateOfferResponse struct {
	Offer Offer `json:"offer"`
}

type CancelOfferRequest struct {
	OfferID string `json:"offer_id"`
}

type CancelOfferResponse struct {
	Offer Offer `json:"offer"`
}

type RejectOfferRequest struct {
	OfferID string `json:"offer_id"`
	Reason  string `json:"reason,omitempty"`
}

type RejectOfferResponse struct {
	Declination Declination `json:"declination"`
}

type AcceptOfferRequest struct {
	OfferID string `json:"offer_id"`
}

type AcceptOfferResponse struct {
	Trade TradeResult `json:"trade"`
}

// ExpireOffersRequest triggers one expiry sweep against the server clock.
type ExpireOffersRequest struct {
	BatchSize int32 `json:"batch_size,omitempty"`
}

type ExpireOffersResponse struct {
	Scanned int32 `json:"scanned"`
	Expired int32 `json:"expired"`
	Skipped int32 `json:"skipped"`
}

type GetOfferRequest struct {
	OfferID string `json:"offer_id"`
}

type GetOfferResponse struct {
	Offer Offer `json:"offer"`
}

type ListOffersRequest struct {
	Statuses  []string `json:"statuses,omitempty"`
	SellerID  string   `json:"seller_id,omitempty"`
	Platform  string   `json:"platform,omitempty"`
	MinPrice  string   `json:"min_price,omitempty"`
	MaxPrice  string   `json:"max_price,omitempty"`
	MinLevel  *int32   `json:"min_level,omitempty"`
	MaxLevel  *int32   `json:"max_level,omitempty"`
	Filter    string   `json:"filter,omitempty"`
	OrderBy   string   `json:"order_by,omitempty"`
	PageSize  int32    `json:"page_size,omitempty"`
	PageToken string   `json:"page_token,omitempty"`
}

type ListOffersResponse struct {
	Offers        []OfferSummary `json:"offers"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type GetOwnershipHistoryRequest struct {
	AssetID string `json:"asset_id"`
}

type GetOwnershipHistoryResponse struct {
	Records []OwnershipRecord `json:"records"`
}

type LeaseEventsRequest struct {
	Consumer        string `json:"consumer"`
	Limit           int32  `json:"limit,omitempty"`
	LeaseTTLSeconds int32  `json:"lease_ttl_seconds,omitempty"`
}

type LeaseEventsResponse struct {
	Events []OutboxEvent `json:"events"`
}

// AckEventRequest settles a lease. Outcome is succeeded, retry or dead;
// NextAttemptAt applies to retry.
type AckEventRequest struct {
	EventID       string     `json:"event_id"`
	Consumer      string     `json:"consumer"`
	Outcome       string     `json:"outcome"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

type AckEventResponse struct{}
