package grpc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func TestDialWithHealthServing(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	defer stop()

	conn, err := DialWithHealth(context.Background(), addr, "", 2*time.Second, zerolog.Nop(), DefaultClientDialOptions()...)
	if err != nil {
		t.Fatalf("dial with health: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close conn: %v", err)
	}
}

func TestDialWithHealthTimeoutBoundsWait(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	defer stop()

	start := time.Now()
	conn, err := DialWithHealth(context.Background(), addr, "", 150*time.Millisecond, zerolog.Nop(), DefaultClientDialOptions()...)
	if conn != nil {
		_ = conn.Close()
		t.Fatal("expected nil connection on error")
	}
	var dialErr *DialError
	if !errors.As(err, &dialErr) || dialErr.Stage != DialStageHealth {
		t.Fatalf("expected health stage error, got %v", err)
	}
	if dialErr.Addr != addr {
		t.Fatalf("addr = %q, want %q", dialErr.Addr, addr)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("dial timeout did not bound health wait: %v", elapsed)
	}
}

func TestDialWithHealthConnectErrors(t *testing.T) {
	cases := map[string]struct {
		addr string
	}{
		"empty address": {addr: "  "},
		// No transport credentials were supplied.
		"missing credentials": {addr: "127.0.0.1:1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DialWithHealth(context.Background(), tc.addr, "", time.Second, zerolog.Nop())
			var dialErr *DialError
			if !errors.As(err, &dialErr) || dialErr.Stage != DialStageConnect {
				t.Fatalf("expected connect stage error, got %v", err)
			}
		})
	}
}

func TestDialErrorFormatting(t *testing.T) {
	err := &DialError{Stage: DialStageConnect, Addr: "trading:8090", Err: errors.New("boom")}
	if !strings.Contains(err.Error(), "gRPC connect error for trading:8090") {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if err.Unwrap() == nil {
		t.Fatal("expected wrapped error")
	}

	var nilErr *DialError
	if nilErr.Error() == "" || nilErr.Unwrap() != nil {
		t.Fatal("unexpected nil DialError behaviour")
	}
}

func TestHealthBackoffDoublesAndCaps(t *testing.T) {
	b := newHealthBackoff()
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Fatalf("delay %d = %v, want %v", i, got, w)
		}
	}
}
