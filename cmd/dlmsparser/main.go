// Package main is the entry point for the DLMS parser.
//
// The binary has two faces: `dlmsparser serve` runs the long-lived service
// (HTTP API, WebSocket feed, optional MQTT ingest and InfluxDB metrics), and
// the remaining subcommands decode, validate and inspect frames one-shot
// from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Build information, set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.date=2026-01-15"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Create context that cancels on interrupt signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: cancel() called explicitly above
	}
}
