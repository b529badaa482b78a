// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command vaultctl negotiates vault sessions, drives the embedded
// tokenize/detokenize flows and serves a local frame simulator.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/vaultembed/internal/config"
	xglog "github.com/ManuGH/vaultembed/internal/log"
	"github.com/ManuGH/vaultembed/internal/telemetry"
	"github.com/ManuGH/vaultembed/internal/version"
)

func main() {
	// Create a context that listens for the interrupt signal from the OS
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "-version", "--version", "version":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "session":
		return runSession(ctx, args[1:], stdout, stderr)
	case "tokenize":
		return runTokenize(ctx, args[1:], stdout, stderr)
	case "detokenize":
		return runDetokenize(ctx, args[1:], stdout, stderr)
	case "frame-sim":
		return runFrameSim(ctx, args[1:], stdout, stderr)
	case "config":
		return runConfig(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  vaultctl session [-config f.yaml] [-flow tokenize|detokenize] [-token T] [-mtid ID]")
	fmt.Fprintln(w, "  vaultctl tokenize [-config f.yaml] [-host-origin URL] [-wait 2m]")
	fmt.Fprintln(w, "  vaultctl detokenize -token T [-config f.yaml] [-host-origin URL] [-wait 2m]")
	fmt.Fprintln(w, "  vaultctl frame-sim [-listen :8099] [-card PAN] [-fail error|expire|field_errors]")
	fmt.Fprintln(w, "  vaultctl config [-config f.yaml] [-validate]")
	fmt.Fprintln(w, "  vaultctl -version")
}

// bootstrap loads the config and configures logging and tracing for one command.
// The returned cleanup flushes pending spans.
func bootstrap(ctx context.Context, configPath string, stderr io.Writer) (config.AppConfig, func(), error) {
	// Configure logger with safe defaults until config is loaded
	xglog.Configure(xglog.Config{Level: "info", Output: stderr, Service: "vaultctl", Version: version.Version})

	cfg, err := config.Load(configPath)
	if err != nil {
		return config.AppConfig{}, nil, err
	}

	lc := cfg.LogConfig(version.Version)
	lc.Output = stderr
	xglog.Configure(lc)

	tp, err := telemetry.NewProvider(ctx, cfg.TelemetryConfig(version.Version))
	if err != nil {
		return config.AppConfig{}, nil, fmt.Errorf("telemetry: %w", err)
	}
	logger := xglog.WithComponent("vaultctl")
	cleanup := func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}

	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Debug().
		Str(xglog.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", configPath).
		Msg("loaded configuration")
	return cfg, cleanup, nil
}
