package app

import (
	"context"
	"fmt"
	"time"

	tradingv1 "github.com/louisbranch/catmarket/api/trading/v1"
	"github.com/louisbranch/catmarket/internal/platform/timeouts"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

const (
	defaultExpiryInterval  = time.Minute
	defaultExpiryBatchSize = 100
)

// ExpiryClient is the slice of the trading API the sweeper uses.
type ExpiryClient interface {
	ExpireOffers(ctx context.Context, in *tradingv1.ExpireOffersRequest, opts ...grpc.CallOption) (*tradingv1.ExpireOffersResponse, error)
}

// Expirer asks the trading service to cancel overdue offers on a fixed
// interval.
type Expirer struct {
	client    ExpiryClient
	interval  time.Duration
	batchSize int
	log       zerolog.Logger
}

// NewExpirer builds a sweeper. Non-positive settings use defaults.
func NewExpirer(client ExpiryClient, interval time.Duration, batchSize int, logger zerolog.Logger) *Expirer {
	if interval <= 0 {
		interval = defaultExpiryInterval
	}
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	return &Expirer{
		client:    client,
		interval:  interval,
		batchSize: batchSize,
		log:       logger.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Run sweeps until ctx is cancelled.
func (e *Expirer) Run(ctx context.Context) error {
	if e == nil || e.client == nil {
		return fmt.Errorf("expiry client is not configured")
	}
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		if _, err := e.RunOnce(ctx); err != nil && ctx.Err() == nil {
			e.log.Warn().Err(err).Msg("expiry sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce triggers a single sweep. The trading service clock decides which
// offers are overdue.
func (e *Expirer) RunOnce(ctx context.Context) (*tradingv1.ExpireOffersResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()
	resp, err := e.client.ExpireOffers(callCtx, &tradingv1.ExpireOffersRequest{BatchSize: int32(e.batchSize)})
	if err != nil {
		return nil, fmt.Errorf("expire offers: %w", err)
	}
	if resp.Expired > 0 || resp.Skipped > 0 {
		e.log.Info().Int32("scanned", resp.Scanned).Int32("expired", resp.Expired).Int32("skipped", resp.Skipped).Msg("expired offers")
	}
	return resp, nil
}
