// Command worker delivers trading outbox events to webhooks and expires
// stale offers.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	workercmd "github.com/louisbranch/catmarket/internal/cmd/worker"
	"github.com/louisbranch/catmarket/internal/platform/config"
)

func main() {
	cfg, err := workercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("worker config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := workercmd.Run(ctx, cfg); err != nil {
		config.Exitf("worker: %v", err)
	}
}
