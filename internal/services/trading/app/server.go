// Package server wires the trading runtime and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	tradingv1 "github.com/louisbranch/catmarket/api/trading/v1"
	"github.com/louisbranch/catmarket/internal/platform/telemetry/metrics"
	"github.com/louisbranch/catmarket/internal/platform/timeouts"
	"github.com/louisbranch/catmarket/internal/services/shared/grpcauthctx"
	"github.com/louisbranch/catmarket/internal/services/trading/acceptance"
	tradingservice "github.com/louisbranch/catmarket/internal/services/trading/api/grpc/trading"
	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/offer"
	"github.com/louisbranch/catmarket/internal/services/trading/settlement"
	"github.com/louisbranch/catmarket/internal/services/trading/settlement/credits"
	"github.com/louisbranch/catmarket/internal/services/trading/settlement/httpsettle"
	tradingsqlite "github.com/louisbranch/catmarket/internal/services/trading/storage/sqlite"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Settlement backends.
const (
	SettlementCredits = "credits"
	SettlementHTTP    = "http"
)

// Config configures a trading server.
type Config struct {
	Addr        string
	MetricsAddr string
	DBPath      string
	Policy      domain.Policy
	// Settlement selects the backend: credits or http.
	Settlement    string
	SettlementURL string
	SystemCallers []string
	Logger        zerolog.Logger
}

// Server hosts the trading gRPC API and storage lifecycle.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	metricsSrv *http.Server
	store      *tradingsqlite.Store
	log        zerolog.Logger
}

// New creates a configured trading server.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "trading.db")
	}
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	store, err := openTradingStore(cfg.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	fail := func(err error) (*Server, error) {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	settler, err := newSettler(ctx, cfg, store)
	if err != nil {
		return fail(err)
	}
	m := metrics.New()
	registry, err := offer.NewRegistry(offer.Config{
		Store:   store,
		Policy:  cfg.Policy,
		Logger:  cfg.Logger,
		Metrics: m,
	})
	if err != nil {
		return fail(fmt.Errorf("build offer registry: %w", err))
	}
	coordinator, err := acceptance.NewCoordinator(acceptance.Config{
		Store:   store,
		Settler: settler,
		Policy:  cfg.Policy,
		Logger:  cfg.Logger,
		Metrics: m,
	})
	if err != nil {
		return fail(fmt.Errorf("build acceptance coordinator: %w", err))
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			m.UnaryServerInterceptor(),
			grpcauthctx.UnaryServerInterceptor(),
		),
	)
	apiService := tradingservice.NewService(tradingservice.Config{
		Registry:      registry,
		Coordinator:   coordinator,
		Outbox:        store,
		SystemCallers: cfg.SystemCallers,
		Logger:        cfg.Logger,
	})
	healthServer := health.NewServer()
	tradingv1.RegisterTradingServiceServer(grpcServer, apiService)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(tradingv1.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	var metricsSrv *http.Server
	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: timeouts.ReadHeader}
	}

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		metricsSrv: metricsSrv,
		store:      store,
		log:        cfg.Logger,
	}, nil
}

func newSettler(ctx context.Context, cfg Config, store *tradingsqlite.Store) (settlement.Settler, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Settlement)) {
	case "", SettlementCredits:
		settler, err := credits.New(ctx, store.DB())
		if err != nil {
			return nil, fmt.Errorf("open credit wallets: %w", err)
		}
		return settler, nil
	case SettlementHTTP:
		client, err := httpsettle.New(httpsettle.Config{BaseURL: cfg.SettlementURL})
		if err != nil {
			return nil, fmt.Errorf("build settlement client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("settlement backend %q is not supported", cfg.Settlement)
	}
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a trading server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	s.log.Info().Str("addr", s.listener.Addr().String()).Msg("trading server listening")
	serveErr := make(chan error, 2)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()
	if s.metricsSrv != nil {
		s.log.Info().Str("addr", s.metricsSrv.Addr).Msg("metrics listening")
		go func() {
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("serve metrics: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		s.shutdownMetrics()
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

func (s *Server) shutdownMetrics() {
	if s.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.metricsSrv.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("shutdown metrics server")
	}
}

// Close releases trading server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.shutdownMetrics()
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Error().Err(err).Msg("close trading store")
		}
		s.store = nil
	}
}

func openTradingStore(path string) (*tradingsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := tradingsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trading sqlite store: %w", err)
	}
	return store, nil
}
