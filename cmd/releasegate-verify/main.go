// Package main verifies stored audit chains for tampering.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/releasegate/releasegate/internal/cmd/verify"
	entrypoint "github.com/releasegate/releasegate/internal/platform/cmd"
	"github.com/releasegate/releasegate/internal/platform/config"
)

func main() {
	cfg, err := verify.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceVerify, func(ctx context.Context) error {
		return verify.Run(ctx, cfg, os.Stdout)
	})
	if err != nil {
		config.Exitf("verify: %v", err)
	}
}
