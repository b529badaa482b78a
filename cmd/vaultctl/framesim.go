// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/vaultembed/internal/frame/sim"
	xglog "github.com/ManuGH/vaultembed/internal/log"
)

const shutdownGrace = 5 * time.Second

func parseFailure(s string) (sim.Failure, error) {
	switch f := sim.Failure(strings.ToLower(strings.TrimSpace(s))); f {
	case sim.FailNone, sim.FailError, sim.FailExpire, sim.FailFieldErrors:
		return f, nil
	default:
		return "", fmt.Errorf("unknown failure %q (want error, expire or field_errors)", s)
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func runFrameSim(ctx context.Context, args []string, _, stderr io.Writer) int {
	fs := flag.NewFlagSet("vaultctl frame-sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML configuration file (log and telemetry only)")
	listen := fs.String("listen", ":8099", "listen address")
	card := fs.String("card", "4111111111111111", "card number the simulated user enters")
	failName := fs.String("fail", "", "scripted failure: error, expire or field_errors")
	lifetime := fs.Duration("lifetime", 0, "session lifetime before auv_timeout (0 disables)")
	delay := fs.Duration("validation-delay", 0, "delay before answering isCreditCardValid")
	allow := fs.String("allow-origin", "", "comma-separated host origins allowed to embed the frame (empty allows any)")
	loads := fs.Int("loads-per-minute", 60, "frame loads per client IP per minute (0 disables)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	fail, err := parseFailure(*failName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	_, cleanup, err := bootstrap(ctx, *configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	defer cleanup()
	logger := xglog.WithComponent("frame-sim")

	frames := sim.NewServer(sim.New(sim.Config{
		CardNumber:      *card,
		Fail:            fail,
		SessionLifetime: *lifetime,
		ValidationDelay: *delay,
	}), sim.ServerConfig{
		AllowedOrigins: splitList(*allow),
		LoadsPerMinute: *loads,
		Extra:          map[string]http.Handler{"/metrics": promhttp.Handler()},
	})
	srv := &http.Server{
		Addr:              *listen,
		Handler:           frames.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str(xglog.FieldEvent, "frame_sim.listening").Str("addr", *listen).Msg("frame simulator listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", *listen, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		// Hijacked websocket sessions are not tracked by http.Server; end them first.
		if err := frames.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("frame sessions did not end in time")
		}
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "frame_sim.failed").Msg("frame simulator failed")
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logger.Info().Str(xglog.FieldEvent, "frame_sim.stopped").Msg("frame simulator stopped")
	return 0
}
