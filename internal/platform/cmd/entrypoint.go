// Package cmd holds the startup steps shared by the catmarket binaries:
// environment then flag parsing, and a tracing scope around the run loop.
package cmd

import (
	"context"
	"errors"
	"flag"
	"strings"

	"github.com/louisbranch/catmarket/internal/platform/config"
	"github.com/louisbranch/catmarket/internal/platform/logging"
	"github.com/louisbranch/catmarket/internal/platform/otel"
	"github.com/louisbranch/catmarket/internal/platform/timeouts"
)

// Service names used for loggers and the OpenTelemetry resource.
const (
	ServiceTrading = "trading"
	ServiceWorker  = "worker"
	ServiceSeed    = "seed"
)

var (
	errNilConfig = errors.New("config target is required")
	errNilFlags  = errors.New("flag parser is required")
	errNoService = errors.New("service name is required")
	errNoRunFunc = errors.New("run function is required")
)

// ParseConfig fills cfg from CATMARKET_* variables. Flags registered
// afterwards use these values as their defaults.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errNilConfig
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses args with fs. A nil args slice parses nothing rather than
// falling back to os.Args.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errNilFlags
	}
	return fs.Parse(append([]string(nil), args...))
}

// ParseConfigFromArgs is ParseConfig followed by ParseArgs.
func ParseConfigFromArgs[T any](cfg *T, fs *flag.FlagSet, args []string) error {
	if err := ParseConfig(cfg); err != nil {
		return err
	}
	return ParseArgs(fs, args)
}

// RunWithTelemetry installs tracing for service, runs run and flushes spans
// before returning run's error.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	switch {
	case service == "":
		return errNoService
	case run == nil:
		return errNoRunFunc
	}
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer flushTraces(service, shutdown)

	return run(ctx)
}

func flushTraces(service string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger := logging.New(service)
		logger.Error().Err(err).Msg("flush traces")
	}
}
