// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// GRPCRequest caps the time allowed for a single worker call to the trading
// service.
const GRPCRequest = 5 * time.Second

// Settlement caps a single settlement provider round trip, retries included.
const Settlement = 10 * time.Second

// Webhook caps one webhook delivery attempt.
const Webhook = 5 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
