// Package app runs the catmarket worker: outbox webhook delivery and the
// offer expiry sweep.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	tradingv1 "github.com/louisbranch/catmarket/api/trading/v1"
	"github.com/louisbranch/catmarket/internal/platform/telemetry/metrics"
	"github.com/louisbranch/catmarket/internal/platform/timeouts"
	workerdomain "github.com/louisbranch/catmarket/internal/services/worker/domain"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

const (
	defaultConsumer      = "catmarket-webhooks"
	defaultPollInterval  = 2 * time.Second
	defaultLeaseTTL      = 30 * time.Second
	defaultBatchSize     = 50
	defaultMaxAttempts   = 8
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
)

// Ack outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetry     = "retry"
	OutcomeDead      = "dead"
)

// OutboxClient is the slice of the trading API the delivery loop uses.
type OutboxClient interface {
	LeaseEvents(ctx context.Context, in *tradingv1.LeaseEventsRequest, opts ...grpc.CallOption) (*tradingv1.LeaseEventsResponse, error)
	AckEvent(ctx context.Context, in *tradingv1.AckEventRequest, opts ...grpc.CallOption) (*tradingv1.AckEventResponse, error)
}

// EventHandler delivers one event.
type EventHandler interface {
	Handle(ctx context.Context, event workerdomain.Event) error
}

// Attempt describes one processed event.
type Attempt struct {
	EventID       string
	EventType     string
	Outcome       string
	AttemptCount  int
	Error         string
	NextAttemptAt *time.Time
	CreatedAt     time.Time
}

// AttemptRecorder keeps delivery history.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
}

// Config controls the delivery loop.
type Config struct {
	Consumer      string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	BatchSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) normalized() Config {
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL < time.Second {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = max(defaultRetryMaxDelay, c.RetryBackoff)
	}
	return c
}

// Worker leases outbox events from the trading service and hands them to
// handlers by event type.
type Worker struct {
	client   OutboxClient
	recorder AttemptRecorder
	handlers map[string]EventHandler
	cfg      Config
	clock    func() time.Time
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// New creates a delivery worker. recorder and m may be nil.
func New(client OutboxClient, recorder AttemptRecorder, handlers map[string]EventHandler, cfg Config, clock func() time.Time, logger zerolog.Logger, m *metrics.Metrics) *Worker {
	if clock == nil {
		clock = time.Now
	}
	return &Worker{
		client:   client,
		recorder: recorder,
		handlers: handlers,
		cfg:      cfg.normalized(),
		clock:    clock,
		log:      logger.With().Str("component", "outbox_worker").Logger(),
		metrics:  m,
	}
}

// Run polls until ctx is cancelled. Poll failures are logged and retried
// on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.client == nil {
		return fmt.Errorf("outbox client is not configured")
	}
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("outbox poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce leases one batch and processes it. It returns the number of
// events acked.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	leaseCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	resp, err := w.client.LeaseEvents(leaseCtx, &tradingv1.LeaseEventsRequest{
		Consumer:        w.cfg.Consumer,
		Limit:           int32(w.cfg.BatchSize),
		LeaseTTLSeconds: int32(w.cfg.LeaseTTL / time.Second),
	})
	cancel()
	if err != nil {
		return 0, fmt.Errorf("lease events: %w", err)
	}

	acked := 0
	for _, event := range resp.Events {
		if ctx.Err() != nil {
			return acked, ctx.Err()
		}
		if err := w.process(ctx, event); err != nil {
			w.log.Warn().Err(err).Str("event_id", event.ID).Msg("ack event failed")
			continue
		}
		acked++
	}
	return acked, nil
}

func (w *Worker) process(ctx context.Context, wire tradingv1.OutboxEvent) error {
	event := workerdomain.Event{
		ID:           wire.ID,
		Type:         wire.Type,
		AggregateID:  wire.AggregateID,
		PayloadJSON:  wire.PayloadJSON,
		CreatedAt:    wire.CreatedAt,
		AttemptCount: int(wire.AttemptCount),
	}
	attempt := event.AttemptCount + 1

	handleErr := w.handle(ctx, event)
	now := w.clock().UTC()
	ack := &tradingv1.AckEventRequest{EventID: event.ID, Consumer: w.cfg.Consumer}
	switch {
	case handleErr == nil:
		ack.Outcome = OutcomeSucceeded
	case workerdomain.IsPermanent(handleErr) || attempt >= w.cfg.MaxAttempts:
		ack.Outcome = OutcomeDead
		ack.LastError = handleErr.Error()
	default:
		next := now.Add(w.retryDelay(attempt))
		ack.Outcome = OutcomeRetry
		ack.LastError = handleErr.Error()
		ack.NextAttemptAt = &next
	}

	ackCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()
	if _, err := w.client.AckEvent(ackCtx, ack); err != nil {
		return fmt.Errorf("ack %s: %w", ack.Outcome, err)
	}
	w.metrics.EventDelivered(event.Type, ack.Outcome)

	logEvent := w.log.Info()
	if ack.Outcome != OutcomeSucceeded {
		logEvent = w.log.Warn().Str("error", ack.LastError)
	}
	logEvent.Str("event_id", event.ID).Str("event_type", event.Type).Int("attempt", attempt).Str("outcome", ack.Outcome).Msg("event processed")

	if w.recorder != nil {
		if err := w.recorder.RecordAttempt(ctx, Attempt{
			EventID:       event.ID,
			EventType:     event.Type,
			Outcome:       ack.Outcome,
			AttemptCount:  attempt,
			Error:         ack.LastError,
			NextAttemptAt: ack.NextAttemptAt,
			CreatedAt:     now,
		}); err != nil {
			w.log.Error().Err(err).Str("event_id", event.ID).Msg("record attempt")
		}
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, event workerdomain.Event) error {
	handler, ok := w.handlers[event.Type]
	if !ok || handler == nil {
		return workerdomain.Permanent(fmt.Errorf("no handler for event type %q", event.Type))
	}
	handleCtx, cancel := context.WithTimeout(ctx, timeouts.Webhook)
	defer cancel()
	return handler.Handle(handleCtx, event)
}

// retryDelay is the exponential delay before attempt+1, capped at
// RetryMaxDelay.
func (w *Worker) retryDelay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     w.cfg.RetryBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         w.cfg.RetryMaxDelay,
	}
	b.Reset()
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
