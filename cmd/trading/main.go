// Command trading serves the cat trading and escrow gRPC API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	tradingcmd "github.com/louisbranch/catmarket/internal/cmd/trading"
	"github.com/louisbranch/catmarket/internal/platform/config"
)

func main() {
	cfg, err := tradingcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("trading config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tradingcmd.Run(ctx, cfg); err != nil {
		config.Exitf("trading: %v", err)
	}
}
