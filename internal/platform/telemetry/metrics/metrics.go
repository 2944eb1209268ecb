package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "catmarket"

// Accept outcome labels.
const (
	AcceptCompleted      = "completed"
	AcceptRaceLost       = "race_lost"
	AcceptReverted       = "reverted"
	AcceptSettlementFail = "settlement_failed"
	AcceptDisputed       = "disputed"
	AcceptRejected       = "rejected"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	grpcRequests       *prometheus.CounterVec
	grpcDuration       *prometheus.HistogramVec
	offersCreated      prometheus.Counter
	offersCancelled    *prometheus.CounterVec
	acceptOutcomes     *prometheus.CounterVec
	settlementDuration *prometheus.HistogramVec
	eventDeliveries    *prometheus.CounterVec
}

// New creates a metrics set registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		grpcRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "requests_total",
				Help:      "Total gRPC requests.",
			},
			[]string{"method", "code"},
		),
		grpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_duration_seconds",
				Help:      "gRPC request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		offersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "offers_created_total",
			Help:      "Offers created.",
		}),
		offersCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "trading",
				Name:      "offers_cancelled_total",
				Help:      "Offers cancelled by seller or expiry.",
			},
			[]string{"reason"},
		),
		acceptOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "trading",
				Name:      "accept_outcomes_total",
				Help:      "Accept attempts by outcome.",
			},
			[]string{"outcome"},
		),
		settlementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "trading",
				Name:      "settlement_duration_seconds",
				Help:      "Settlement call duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"success"},
		),
		eventDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "worker",
				Name:      "event_deliveries_total",
				Help:      "Outbox event deliveries by type and outcome.",
			},
			[]string{"event_type", "outcome"},
		),
	}
	m.registry.MustRegister(
		m.grpcRequests,
		m.grpcDuration,
		m.offersCreated,
		m.offersCancelled,
		m.acceptOutcomes,
		m.settlementDuration,
		m.eventDeliveries,
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// UnaryServerInterceptor records request counts and latency per method.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if m != nil {
			m.grpcRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
			m.grpcDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

// OfferCreated counts one created offer.
func (m *Metrics) OfferCreated() {
	if m == nil {
		return
	}
	m.offersCreated.Inc()
}

// OfferCancelled counts one cancelled offer with its reason.
func (m *Metrics) OfferCancelled(reason string) {
	if m == nil {
		return
	}
	m.offersCancelled.WithLabelValues(reason).Inc()
}

// AcceptOutcome counts one accept attempt.
func (m *Metrics) AcceptOutcome(outcome string) {
	if m == nil {
		return
	}
	m.acceptOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveSettlement records one settlement call.
func (m *Metrics) ObserveSettlement(duration time.Duration, success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.settlementDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// EventDelivered counts one outbox delivery attempt.
func (m *Metrics) EventDelivered(eventType string, outcome string) {
	if m == nil {
		return
	}
	m.eventDeliveries.WithLabelValues(eventType, outcome).Inc()
}
