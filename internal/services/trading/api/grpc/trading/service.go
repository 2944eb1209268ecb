// Package trading exposes the trading engine over catmarket.trading.v1.
package trading

import (
	"context"
	"errors"
	"strings"
	"time"

	tradingv1 "github.com/louisbranch/catmarket/api/trading/v1"
	apperrors "github.com/louisbranch/catmarket/internal/platform/errors"
	"github.com/louisbranch/catmarket/internal/platform/requestctx"
	"github.com/louisbranch/catmarket/internal/services/trading/acceptance"
	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/offer"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultLeaseLimit = 50
	maxLeaseLimit     = 500
	defaultLeaseTTL   = 30 * time.Second
	maxLeaseTTL       = 10 * time.Minute
)

// Config wires the service to the trading components.
type Config struct {
	Registry    *offer.Registry
	Coordinator *acceptance.Coordinator
	Outbox      storage.OutboxStore
	// SystemCallers may run ExpireOffers and the outbox methods. Empty
	// allows any identified caller.
	SystemCallers []string
	Clock         func() time.Time
	Logger        zerolog.Logger
}

// Service implements tradingv1.TradingServiceServer.
type Service struct {
	tradingv1.UnimplementedTradingServiceServer
	registry      *offer.Registry
	coordinator   *acceptance.Coordinator
	outbox        storage.OutboxStore
	systemCallers map[string]struct{}
	clock         func() time.Time
	log           zerolog.Logger
}

// NewService creates a trading service.
func NewService(cfg Config) *Service {
	s := &Service{
		registry:    cfg.Registry,
		coordinator: cfg.Coordinator,
		outbox:      cfg.Outbox,
		clock:       cfg.Clock,
		log:         cfg.Logger.With().Str("component", "trading_api").Logger(),
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	for _, caller := range cfg.SystemCallers {
		if caller = strings.TrimSpace(caller); caller != "" {
			if s.systemCallers == nil {
				s.systemCallers = make(map[string]struct{})
			}
			s.systemCallers[caller] = struct{}{}
		}
	}
	return s
}

// CreateOffer lists the caller's asset.
func (s *Service) CreateOffer(ctx context.Context, in *tradingv1.CreateOfferRequest) (*tradingv1.CreateOfferResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "create offer request is required")
	}
	if s.registry == nil {
		return nil, status.Error(codes.Internal, "offer registry is not configured")
	}
	sellerID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	terms, err := domain.NewOfferTerms(domain.TermsInput{
		Price:                in.Price,
		Currency:             in.Currency,
		Platform:             in.Platform,
		ExpiresAt:            in.ExpiresAt,
		AcceptsCounterOffers: in.AcceptsCounterOffers,
		SpecialRequirements:  in.SpecialRequirements,
	}, s.clock().UTC())
	if err != nil {
		return nil, s.handle(ctx, "create offer", err)
	}
	created, err := s.registry.CreateOffer(ctx, sellerID, strings.TrimSpace(in.AssetID), terms)
	if err != nil {
		return nil, s.handle(ctx, "create offer", err)
	}
	return &tradingv1.CreateOfferResponse{Offer: offerToWire(created)}, nil
}

// CancelOffer withdraws one of the caller's pending offers.
func (s *Service) CancelOffer(ctx context.Context, in *tradingv1.CancelOfferRequest) (*tradingv1.CancelOfferResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "cancel offer request is required")
	}
	if s.registry == nil {
		return nil, status.Error(codes.Internal, "offer registry is not configured")
	}
	sellerID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	cancelled, err := s.registry.CancelOffer(ctx, sellerID, strings.TrimSpace(in.OfferID))
	if err != nil {
		return nil, s.handle(ctx, "cancel offer", err)
	}
	return &tradingv1.CancelOfferResponse{Offer: offerToWire(cancelled)}, nil
}

// RejectOffer records that the caller passes on an offer.
func (s *Service) RejectOffer(ctx context.Context, in *tradingv1.RejectOfferRequest) (*tradingv1.RejectOfferResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "reject offer request is required")
	}
	if s.registry == nil {
		return nil, status.Error(codes.Internal, "offer registry is not configured")
	}
	buyerID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	declination, err := s.registry.RejectOffer(ctx, buyerID, strings.TrimSpace(in.OfferID), in.Reason)
	if err != nil {
		return nil, s.handle(ctx, "reject offer", err)
	}
	return &tradingv1.RejectOfferResponse{Declination: declinationToWire(declination)}, nil
}

// AcceptOffer buys the offered asset for the caller.
func (s *Service) AcceptOffer(ctx context.Context, in *tradingv1.AcceptOfferRequest) (*tradingv1.AcceptOfferResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "accept offer request is required")
	}
	if s.coordinator == nil {
		return nil, status.Error(codes.Internal, "acceptance coordinator is not configured")
	}
	buyerID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.coordinator.AcceptOffer(ctx, buyerID, strings.TrimSpace(in.OfferID))
	if err != nil {
		return nil, s.handle(ctx, "accept offer", err)
	}
	return &tradingv1.AcceptOfferResponse{Trade: tradeToWire(result)}, nil
}

// ExpireOffers runs one expiry sweep.
func (s *Service) ExpireOffers(ctx context.Context, in *tradingv1.ExpireOffersRequest) (*tradingv1.ExpireOffersResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "expire offers request is required")
	}
	if s.registry == nil {
		return nil, status.Error(codes.Internal, "offer registry is not configured")
	}
	if err := s.requireSystemCaller(ctx); err != nil {
		return nil, err
	}
	if in.BatchSize < 0 {
		return nil, status.Error(codes.InvalidArgument, "batch size must not be negative")
	}
	result, err := s.registry.ExpireOffers(ctx, s.clock().UTC(), int(in.BatchSize))
	if err != nil {
		return nil, s.handle(ctx, "expire offers", err)
	}
	return &tradingv1.ExpireOffersResponse{
		Scanned: int32(result.Scanned),
		Expired: int32(result.Expired),
		Skipped: int32(result.Skipped),
	}, nil
}

// GetOffer returns one offer.
func (s *Service) GetOffer(ctx context.Context, in *tradingv1.GetOfferRequest) (*tradingv1.GetOfferResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "get offer request is required")
	}
	if s.registry == nil {
		return nil, status.Error(codes.Internal, "offer registry is not configured")
	}
	found, err := s.registry.GetOffer(ctx, strings.TrimSpace(in.OfferID))
	if err != nil {
		return nil, s.handle(ctx, "get offer", err)
	}
	return &tradingv1.GetOfferResponse{Offer: offerToWire(found)}, nil
}

// ListOffers returns a page of offers.
func (s *Service) ListOffers(ctx context.Context, in *tradingv1.ListOffersRequest) (*tradingv1.ListOffersResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "list offers request is required")
	}
	if s.registry == nil {
		return nil, status.Error(codes.Internal, "offer registry is not configured")
	}
	page, err := s.registry.ListOffers(ctx, offer.ListOffersInput{
		Statuses:  offerStatuses(in.Statuses),
		SellerID:  in.SellerID,
		Platform:  in.Platform,
		MinPrice:  in.MinPrice,
		MaxPrice:  in.MaxPrice,
		MinLevel:  intPtr(in.MinLevel),
		MaxLevel:  intPtr(in.MaxLevel),
		Filter:    in.Filter,
		OrderBy:   in.OrderBy,
		PageSize:  in.PageSize,
		PageToken: in.PageToken,
	})
	if err != nil {
		return nil, s.handle(ctx, "list offers", err)
	}
	resp := &tradingv1.ListOffersResponse{
		Offers:        make([]tradingv1.OfferSummary, 0, len(page.Offers)),
		NextPageToken: page.NextPageToken,
	}
	for _, summary := range page.Offers {
		resp.Offers = append(resp.Offers, tradingv1.OfferSummary{
			Offer:      offerToWire(summary.Offer),
			AssetName:  summary.AssetName,
			AssetLevel: int32(summary.AssetLevel),
		})
	}
	return resp, nil
}

// GetOwnershipHistory returns an asset's ledger in order.
func (s *Service) GetOwnershipHistory(ctx context.Context, in *tradingv1.GetOwnershipHistoryRequest) (*tradingv1.GetOwnershipHistoryResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "get ownership history request is required")
	}
	if s.registry == nil {
		return nil, status.Error(codes.Internal, "offer registry is not configured")
	}
	records, err := s.registry.GetOwnershipHistory(ctx, strings.TrimSpace(in.AssetID))
	if err != nil {
		return nil, s.handle(ctx, "get ownership history", err)
	}
	resp := &tradingv1.GetOwnershipHistoryResponse{Records: make([]tradingv1.OwnershipRecord, 0, len(records))}
	for _, record := range records {
		resp.Records = append(resp.Records, tradingv1.OwnershipRecord{
			Seq:             record.Seq,
			AssetID:         record.AssetID,
			PreviousOwnerID: record.PreviousOwnerID,
			NewOwnerID:      record.NewOwnerID,
			Reason:          record.Reason,
			TradeID:         record.TradeID,
			Timestamp:       record.Timestamp,
		})
	}
	return resp, nil
}

// LeaseEvents claims due outbox events for a consumer.
func (s *Service) LeaseEvents(ctx context.Context, in *tradingv1.LeaseEventsRequest) (*tradingv1.LeaseEventsResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "lease events request is required")
	}
	if s.outbox == nil {
		return nil, status.Error(codes.Internal, "outbox store is not configured")
	}
	if err := s.requireSystemCaller(ctx); err != nil {
		return nil, err
	}
	consumer := strings.TrimSpace(in.Consumer)
	if consumer == "" {
		return nil, status.Error(codes.InvalidArgument, "consumer is required")
	}
	limit := int(in.Limit)
	switch {
	case limit <= 0:
		limit = defaultLeaseLimit
	case limit > maxLeaseLimit:
		limit = maxLeaseLimit
	}
	ttl := time.Duration(in.LeaseTTLSeconds) * time.Second
	switch {
	case ttl <= 0:
		ttl = defaultLeaseTTL
	case ttl > maxLeaseTTL:
		ttl = maxLeaseTTL
	}

	events, err := s.outbox.LeaseEvents(ctx, consumer, limit, ttl, s.clock().UTC())
	if err != nil {
		return nil, s.handle(ctx, "lease events", domain.InternalError("lease events", err))
	}
	resp := &tradingv1.LeaseEventsResponse{Events: make([]tradingv1.OutboxEvent, 0, len(events))}
	for _, event := range events {
		wire := tradingv1.OutboxEvent{
			ID:           event.ID,
			Type:         string(event.Type),
			AggregateID:  event.AggregateID,
			PayloadJSON:  event.PayloadJSON,
			CreatedAt:    event.CreatedAt,
			AttemptCount: int32(event.AttemptCount),
		}
		if event.LeaseExpiresAt != nil {
			wire.LeaseExpiresAt = *event.LeaseExpiresAt
		}
		resp.Events = append(resp.Events, wire)
	}
	return resp, nil
}

// AckEvent settles a consumer's lease on one event.
func (s *Service) AckEvent(ctx context.Context, in *tradingv1.AckEventRequest) (*tradingv1.AckEventResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "ack event request is required")
	}
	if s.outbox == nil {
		return nil, status.Error(codes.Internal, "outbox store is not configured")
	}
	if err := s.requireSystemCaller(ctx); err != nil {
		return nil, err
	}
	input := storage.AckInput{
		EventID:   strings.TrimSpace(in.EventID),
		Consumer:  strings.TrimSpace(in.Consumer),
		Outcome:   strings.TrimSpace(in.Outcome),
		LastError: in.LastError,
		At:        s.clock().UTC(),
	}
	if input.EventID == "" || input.Consumer == "" {
		return nil, status.Error(codes.InvalidArgument, "event id and consumer are required")
	}
	switch input.Outcome {
	case storage.AckSucceeded, storage.AckDead:
	case storage.AckRetry:
		if in.NextAttemptAt == nil {
			return nil, status.Error(codes.InvalidArgument, "next attempt time is required for retry")
		}
		input.NextAttemptAt = in.NextAttemptAt.UTC()
	default:
		return nil, status.Errorf(codes.InvalidArgument, "outcome %q is not recognized", input.Outcome)
	}

	if err := s.outbox.AckEvent(ctx, input); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, status.Error(codes.NotFound, "event not found")
		case errors.Is(err, storage.ErrPreconditionFailed):
			return nil, status.Error(codes.FailedPrecondition, "event lease is not held by consumer")
		}
		return nil, s.handle(ctx, "ack event", domain.InternalError("ack event", err))
	}
	return &tradingv1.AckEventResponse{}, nil
}

// handle converts err for the client. Internal failures are logged here and
// still returned.
func (s *Service) handle(ctx context.Context, op string, err error) error {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeInternal || code == apperrors.CodeUnknown {
		s.log.Error().Err(err).Str("op", op).Str("user_id", requestctx.UserIDFromContext(ctx)).Msg("trading request failed")
	}
	return apperrors.HandleError(err, requestctx.LocaleFromContext(ctx))
}

func (s *Service) requireSystemCaller(ctx context.Context) error {
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	if len(s.systemCallers) == 0 {
		return nil
	}
	if _, ok := s.systemCallers[caller]; !ok {
		return status.Error(codes.PermissionDenied, "caller is not a system caller")
	}
	return nil
}

func callerID(ctx context.Context) (string, error) {
	userID := strings.TrimSpace(requestctx.UserIDFromContext(ctx))
	if userID == "" {
		return "", status.Error(codes.Unauthenticated, "user id is required")
	}
	return userID, nil
}

func offerStatuses(in []string) []domain.OfferStatus {
	if in == nil {
		return nil
	}
	out := make([]domain.OfferStatus, len(in))
	for i, v := range in {
		out[i] = domain.OfferStatus(v)
	}
	return out
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func offerToWire(o domain.Offer) tradingv1.Offer {
	return tradingv1.Offer{
		ID:                   o.ID,
		AssetID:              o.AssetID,
		SellerID:             o.SellerID,
		Price:                domain.FormatPrice(o.Price),
		Currency:             o.Currency,
		Platform:             string(o.Platform),
		Status:               string(o.Status),
		AcceptsCounterOffers: o.AcceptsCounterOffers,
		SpecialRequirements:  o.SpecialRequirements,
		ExpiresAt:            o.ExpiresAt,
		AcceptedBy:           o.AcceptedBy,
		CancelReason:         o.CancelReason,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

func declinationToWire(d domain.Declination) tradingv1.Declination {
	return tradingv1.Declination{
		ID:        d.ID,
		OfferID:   d.OfferID,
		BuyerID:   d.BuyerID,
		Reason:    d.Reason,
		CreatedAt: d.CreatedAt,
	}
}

func tradeToWire(t domain.TradeResult) tradingv1.TradeResult {
	return tradingv1.TradeResult{
		TradeID:     t.TradeID,
		OfferID:     t.OfferID,
		AssetID:     t.AssetID,
		BuyerID:     t.BuyerID,
		SellerID:    t.SellerID,
		Price:       domain.FormatPrice(t.Price),
		Currency:    t.Currency,
		CompletedAt: t.CompletedAt,
	}
}
