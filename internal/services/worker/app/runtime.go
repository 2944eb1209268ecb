package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tradingv1 "github.com/louisbranch/catmarket/api/trading/v1"
	platformgrpc "github.com/louisbranch/catmarket/internal/platform/grpc"
	"github.com/louisbranch/catmarket/internal/platform/telemetry/metrics"
	"github.com/louisbranch/catmarket/internal/platform/timeouts"
	"github.com/louisbranch/catmarket/internal/services/shared/grpcauthctx"
	workerdomain "github.com/louisbranch/catmarket/internal/services/worker/domain"
	workerstorage "github.com/louisbranch/catmarket/internal/services/worker/storage"
	workersqlite "github.com/louisbranch/catmarket/internal/services/worker/storage/sqlite"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the worker's gRPC health service name.
const HealthService = "catmarket.worker.v1.Runtime"

// EventTypes lists the trading events delivered to webhooks.
var EventTypes = []string{"offer_created", "offer_cancelled", "offer_declined", "trade_completed"}

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port            int
	TradingAddr     string
	CallerID        string
	DBPath          string
	Consumer        string
	PollInterval    time.Duration
	LeaseTTL        time.Duration
	BatchSize       int
	MaxAttempts     int
	RetryBackoff    time.Duration
	RetryMaxDelay   time.Duration
	GRPCDialTimeout time.Duration
	// WebhookURL disables event delivery when empty.
	WebhookURL      string
	WebhookSecret   string
	ExpiryInterval  time.Duration
	ExpiryBatchSize int
	// MetricsAddr disables the Prometheus endpoint when empty.
	MetricsAddr string
	Logger      zerolog.Logger
}

const (
	defaultWorkerPort = 8089
	defaultWorkerDB   = "data/worker.db"
	defaultCallerID   = "catmarket-worker"
)

// Run starts worker dependencies and the background loops.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.TradingAddr) == "" {
		return fmt.Errorf("trading address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultWorkerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorkerDB
	}
	if strings.TrimSpace(cfg.CallerID) == "" {
		cfg.CallerID = defaultCallerID
	}
	if cfg.GRPCDialTimeout <= 0 {
		cfg.GRPCDialTimeout = timeouts.GRPCDial
	}
	log := cfg.Logger

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create worker storage dir: %w", err)
		}
	}
	workerStore, err := workersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open worker sqlite store: %w", err)
	}
	defer func() {
		if closeErr := workerStore.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("close worker sqlite store")
		}
	}()

	dialOpts := append(platformgrpc.DefaultClientDialOptions(),
		grpc.WithUnaryInterceptor(grpcauthctx.UserIDUnaryClientInterceptor(cfg.CallerID)),
	)
	tradingConn, err := platformgrpc.DialWithHealth(ctx, cfg.TradingAddr, tradingv1.ServiceName, cfg.GRPCDialTimeout, log, dialOpts...)
	if err != nil {
		return fmt.Errorf("dial trading service: %w", err)
	}
	defer func() {
		if closeErr := tradingConn.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("close trading connection")
		}
	}()
	tradingClient := tradingv1.NewTradingServiceClient(tradingConn)

	m := metrics.New()
	loops, err := buildLoops(cfg, tradingClient, workerStore, m)
	if err != nil {
		return err
	}
	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		loops = append(loops, metricsLoop(addr, m.Handler(), log))
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on worker port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Info().Str("addr", listener.Addr().String()).Msg("worker server listening")
	group, groupCtx := errgroup.WithContext(ctx)
	for _, loop := range loops {
		group.Go(func() error { return loop(groupCtx) })
	}
	return group.Wait()
}

type loopFunc func(context.Context) error

// metricsLoop serves handler on addr until ctx ends.
func metricsLoop(addr string, handler http.Handler, log zerolog.Logger) loopFunc {
	return func(ctx context.Context) error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: timeouts.ReadHeader}
		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", addr).Msg("worker metrics listening")
			errCh <- srv.ListenAndServe()
		}()
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve worker metrics: %w", err)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown worker metrics: %w", err)
			}
			<-errCh
			return nil
		}
	}
}

// buildLoops assembles the expiry sweeper and, when a webhook is
// configured, the outbox delivery loop.
func buildLoops(cfg RuntimeConfig, client tradingv1.TradingServiceClient, store workerstorage.AttemptStore, m *metrics.Metrics) ([]loopFunc, error) {
	expirer := NewExpirer(client, cfg.ExpiryInterval, cfg.ExpiryBatchSize, cfg.Logger)
	loops := []loopFunc{expirer.Run}

	if strings.TrimSpace(cfg.WebhookURL) == "" {
		cfg.Logger.Warn().Msg("webhook url not set; event delivery disabled")
		return loops, nil
	}
	webhook, err := workerdomain.NewWebhookHandler(cfg.WebhookURL, cfg.WebhookSecret, nil)
	if err != nil {
		return nil, err
	}
	handlers := make(map[string]EventHandler, len(EventTypes))
	for _, eventType := range EventTypes {
		handlers[eventType] = webhook
	}
	loopConfig := Config{
		Consumer:      cfg.Consumer,
		PollInterval:  cfg.PollInterval,
		LeaseTTL:      cfg.LeaseTTL,
		BatchSize:     cfg.BatchSize,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
	}.normalized()
	worker := New(client, newAttemptStoreRecorder(store, loopConfig.Consumer), handlers, loopConfig, nil, cfg.Logger, m)
	return append(loops, worker.Run), nil
}

type attemptStoreRecorder struct {
	store    workerstorage.AttemptStore
	consumer string
}

func newAttemptStoreRecorder(store workerstorage.AttemptStore, consumer string) *attemptStoreRecorder {
	normalizedConsumer := strings.TrimSpace(consumer)
	if normalizedConsumer == "" {
		normalizedConsumer = defaultConsumer
	}
	return &attemptStoreRecorder{store: store, consumer: normalizedConsumer}
}

func (r *attemptStoreRecorder) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if r == nil || r.store == nil {
		return nil
	}
	consumer := strings.TrimSpace(r.consumer)
	if consumer == "" {
		consumer = defaultConsumer
	}
	return r.store.RecordAttempt(ctx, workerstorage.AttemptRecord{
		EventID:       attempt.EventID,
		EventType:     attempt.EventType,
		Consumer:      consumer,
		Outcome:       attempt.Outcome,
		AttemptCount:  attempt.AttemptCount,
		LastError:     attempt.Error,
		NextAttemptAt: attempt.NextAttemptAt,
		CreatedAt:     attempt.CreatedAt,
	})
}
