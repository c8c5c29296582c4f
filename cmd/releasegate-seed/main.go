// Package main seeds a local development database with demo checks.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/releasegate/releasegate/internal/cmd/seed"
	entrypoint "github.com/releasegate/releasegate/internal/platform/cmd"
	"github.com/releasegate/releasegate/internal/platform/config"
)

func main() {
	cfg, err := seed.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(ctx context.Context) error {
		return seed.Run(ctx, cfg, os.Stdout)
	})
	if err != nil {
		config.Exitf("seed: %v", err)
	}
}
