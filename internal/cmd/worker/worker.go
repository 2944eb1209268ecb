// Package worker parses worker command flags and launches the worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/catmarket/internal/platform/cmd"
	"github.com/louisbranch/catmarket/internal/platform/discovery"
	"github.com/louisbranch/catmarket/internal/platform/logging"
	workerserver "github.com/louisbranch/catmarket/internal/services/worker/app"
)

// Config holds worker command configuration.
type Config struct {
	Port            int           `env:"CATMARKET_WORKER_PORT" envDefault:"8089"`
	TradingAddr     string        `env:"CATMARKET_WORKER_TRADING_ADDR"`
	CallerID        string        `env:"CATMARKET_WORKER_CALLER_ID" envDefault:"catmarket-worker"`
	DBPath          string        `env:"CATMARKET_WORKER_DB_PATH" envDefault:"data/worker.db"`
	Consumer        string        `env:"CATMARKET_WORKER_CONSUMER" envDefault:"catmarket-webhooks"`
	PollInterval    time.Duration `env:"CATMARKET_WORKER_POLL_INTERVAL" envDefault:"2s"`
	LeaseTTL        time.Duration `env:"CATMARKET_WORKER_LEASE_TTL" envDefault:"30s"`
	BatchSize       int           `env:"CATMARKET_WORKER_BATCH_SIZE" envDefault:"50"`
	MaxAttempts     int           `env:"CATMARKET_WORKER_MAX_ATTEMPTS" envDefault:"8"`
	RetryBackoff    time.Duration `env:"CATMARKET_WORKER_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay   time.Duration `env:"CATMARKET_WORKER_RETRY_MAX_DELAY" envDefault:"5m"`
	GRPCDialTimeout time.Duration `env:"CATMARKET_WORKER_DIAL_TIMEOUT" envDefault:"2s"`
	WebhookURL      string        `env:"CATMARKET_WORKER_WEBHOOK_URL"`
	WebhookSecret   string        `env:"CATMARKET_WORKER_WEBHOOK_SECRET"`
	ExpiryInterval  time.Duration `env:"CATMARKET_WORKER_EXPIRY_INTERVAL" envDefault:"1m"`
	ExpiryBatchSize int           `env:"CATMARKET_WORKER_EXPIRY_BATCH_SIZE" envDefault:"100"`
	MetricsAddr     string        `env:"CATMARKET_WORKER_METRICS_ADDR" envDefault:":9091"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.TradingAddr = discovery.OrDefaultGRPCAddr(cfg.TradingAddr, discovery.ServiceTrading)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The worker health gRPC server port")
	fs.StringVar(&cfg.TradingAddr, "trading-addr", cfg.TradingAddr, "The trading gRPC server address")
	fs.StringVar(&cfg.CallerID, "caller-id", cfg.CallerID, "Identity presented to the trading service")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The worker SQLite database path")
	fs.StringVar(&cfg.Consumer, "consumer", cfg.Consumer, "Trading outbox consumer name")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Trading outbox poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Trading outbox lease duration")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Events leased per poll")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum delivery attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.DurationVar(&cfg.GRPCDialTimeout, "dial-timeout", cfg.GRPCDialTimeout, "gRPC dependency dial timeout")
	fs.StringVar(&cfg.WebhookURL, "webhook-url", cfg.WebhookURL, "Webhook endpoint for trading events; empty disables delivery")
	fs.DurationVar(&cfg.ExpiryInterval, "expiry-interval", cfg.ExpiryInterval, "How often stale offers are expired")
	fs.IntVar(&cfg.ExpiryBatchSize, "expiry-batch-size", cfg.ExpiryBatchSize, "Offers expired per sweep")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address; empty disables it")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(ctx context.Context) error {
		return workerserver.Run(ctx, workerserver.RuntimeConfig{
			Port:            cfg.Port,
			TradingAddr:     cfg.TradingAddr,
			CallerID:        cfg.CallerID,
			DBPath:          cfg.DBPath,
			Consumer:        cfg.Consumer,
			PollInterval:    cfg.PollInterval,
			LeaseTTL:        cfg.LeaseTTL,
			BatchSize:       cfg.BatchSize,
			MaxAttempts:     cfg.MaxAttempts,
			RetryBackoff:    cfg.RetryBackoff,
			RetryMaxDelay:   cfg.RetryMaxDelay,
			GRPCDialTimeout: cfg.GRPCDialTimeout,
			WebhookURL:      cfg.WebhookURL,
			WebhookSecret:   cfg.WebhookSecret,
			ExpiryInterval:  cfg.ExpiryInterval,
			ExpiryBatchSize: cfg.ExpiryBatchSize,
			MetricsAddr:     cfg.MetricsAddr,
			Logger:          logging.New(entrypoint.ServiceWorker),
		})
	})
}
