// Package main provides a CLI for running one engagement check.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/loopline-hq/loopline/internal/platform/config"

	checkcmd "github.com/loopline-hq/loopline/internal/cmd/engagementcheck"
)

func main() {
	cfg, err := checkcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := checkcmd.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("run check: %v", err)
	}
}
