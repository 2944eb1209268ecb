// Package trading parses trading service flags and launches the service.
package trading

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/catmarket/internal/platform/cmd"
	"github.com/louisbranch/catmarket/internal/platform/discovery"
	"github.com/louisbranch/catmarket/internal/platform/logging"
	server "github.com/louisbranch/catmarket/internal/services/trading/app"
	"github.com/louisbranch/catmarket/internal/services/trading/domain"
)

// Config holds trading command configuration.
type Config struct {
	Port            int           `env:"CATMARKET_TRADING_PORT" envDefault:"8090"`
	MetricsAddr     string        `env:"CATMARKET_TRADING_METRICS_ADDR" envDefault:":9090"`
	DBPath          string        `env:"CATMARKET_TRADING_DB_PATH" envDefault:"data/trading.db"`
	MinLevel        int           `env:"CATMARKET_TRADING_MIN_LEVEL" envDefault:"5"`
	Cooldown        time.Duration `env:"CATMARKET_TRADING_COOLDOWN" envDefault:"24h"`
	MaxActiveOffers int           `env:"CATMARKET_TRADING_MAX_ACTIVE_OFFERS" envDefault:"5"`
	MaxBuyerAssets  int           `env:"CATMARKET_TRADING_MAX_BUYER_ASSETS" envDefault:"50"`
	Settlement      string        `env:"CATMARKET_TRADING_SETTLEMENT" envDefault:"credits"`
	SettlementURL   string        `env:"CATMARKET_TRADING_SETTLEMENT_URL"`
	SystemCallers   []string      `env:"CATMARKET_TRADING_SYSTEM_CALLERS" envDefault:"catmarket-worker" envSeparator:","`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The trading gRPC server port")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address; empty disables it")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the trading SQLite database")
	fs.StringVar(&cfg.Settlement, "settlement", cfg.Settlement, "Settlement backend: credits or http")
	fs.StringVar(&cfg.SettlementURL, "settlement-url", cfg.SettlementURL, "Base URL of the HTTP payment service; defaults to the payments service")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.Settlement = strings.ToLower(strings.TrimSpace(cfg.Settlement))
	switch cfg.Settlement {
	case server.SettlementCredits:
	case server.SettlementHTTP:
		cfg.SettlementURL = discovery.OrDefaultHTTPBaseURL(cfg.SettlementURL, discovery.ServicePayments)
	default:
		return Config{}, fmt.Errorf("unknown settlement backend %q", cfg.Settlement)
	}
	if err := cfg.Policy().Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Policy returns the trading rules configured for this process.
func (c Config) Policy() domain.Policy {
	return domain.Policy{
		MinTradeLevel:            c.MinLevel,
		Cooldown:                 c.Cooldown,
		MaxActiveOffersPerSeller: c.MaxActiveOffers,
		MaxAssetsPerBuyer:        c.MaxBuyerAssets,
	}
}

// Run starts the trading gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTrading, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			Addr:          fmt.Sprintf(":%d", cfg.Port),
			MetricsAddr:   cfg.MetricsAddr,
			DBPath:        cfg.DBPath,
			Policy:        cfg.Policy(),
			Settlement:    cfg.Settlement,
			SettlementURL: cfg.SettlementURL,
			SystemCallers: cfg.SystemCallers,
			Logger:        logging.New(entrypoint.ServiceTrading),
		})
	})
}
