// Package grpc holds the gRPC helpers shared by catmarket processes: the
// JSON codec, dialing with health checks, and page tokens.
package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthInitialBackoff = 200 * time.Millisecond
	healthMaxBackoff     = time.Second
	healthCheckTimeout   = time.Second
)

func newHealthBackoff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     healthInitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         healthMaxBackoff,
	}
	b.Reset()
	return b
}

// WaitForHealth polls the health service until it reports SERVING or ctx
// ends. An empty service checks the whole server.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logger zerolog.Logger) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := grpc_health_v1.NewHealthClient(conn)
	delays := newHealthBackoff()
	for {
		callCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}

		wait := delays.NextBackOff()
		event := logger.Debug().Str("target", conn.Target()).Str("health_service", service).Dur("retry_in", wait)
		if err != nil {
			event.Err(err).Msg("waiting for gRPC health")
		} else {
			event.Str("status", resp.GetStatus().String()).Msg("waiting for gRPC health")
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
