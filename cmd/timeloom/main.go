// Package main provides the timeloom operations CLI.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	platformcmd "github.com/louisbranch/timeloom/internal/platform/cmd"
	"github.com/louisbranch/timeloom/internal/platform/config"
	"github.com/louisbranch/timeloom/internal/tools/timeloomctl"
)

func main() {
	cfg, err := timeloomctl.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	err = platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceTimeloom, func(ctx context.Context) error {
		return timeloomctl.Run(ctx, cfg, os.Stdout, os.Stderr)
	})
	if err != nil {
		config.Exitf("Error: %v", err)
	}
}
