// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/vaultembed/internal/channel"
	"github.com/ManuGH/vaultembed/internal/config"
	"github.com/ManuGH/vaultembed/internal/embed"
	"github.com/ManuGH/vaultembed/internal/host"
	xglog "github.com/ManuGH/vaultembed/internal/log"
	"github.com/ManuGH/vaultembed/internal/transport"
	"github.com/ManuGH/vaultembed/internal/vault"
)

const defaultHostOrigin = "http://localhost"

type sessionOutput struct {
	SessionID string `json:"sessionId"`
	TraceID   string `json:"traceId"`
	LoadURL   string `json:"loadUrl"`
}

type flowOutput struct {
	Outcome  string `json:"outcome"`
	TraceID  string `json:"traceId"`
	Token    string `json:"token,omitempty"`
	CardType string `json:"cardType,omitempty"`
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// merchantTxn defaults to a random id so repeated runs never collide.
func merchantTxn(flagValue string) string {
	if id := strings.TrimSpace(flagValue); id != "" {
		return id
	}
	return uuid.NewString()
}

func runSession(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vaultctl session", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML configuration file")
	flowName := fs.String("flow", string(embed.FlowTokenize), "flow the session is negotiated for: tokenize or detokenize")
	token := fs.String("token", "", "auv token (detokenize only)")
	mtid := fs.String("mtid", "", "merchant transaction id (default: random)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	flow, err := embed.ParseFlow(*flowName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	cfg, cleanup, err := bootstrap(ctx, *configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	defer cleanup()

	neg, err := vault.NewNegotiator(cfg.NegotiatorConfig())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	creds := cfg.Credentials(merchantTxn(*mtid))
	creds.Retention = flow.Retention(creds.Retention)

	sess, err := neg.Negotiate(ctx, creds)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	loadURL, err := cfg.EmbedConfig().LoadURL(sess, embed.Target{Flow: flow, AuvToken: *token})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	writeJSON(stdout, sessionOutput{SessionID: sess.ID, TraceID: sess.TraceID.String(), LoadURL: loadURL})
	return 0
}

// flowFlags are shared by tokenize and detokenize.
type flowFlags struct {
	configPath string
	hostOrigin string
	mtid       string
	wait       time.Duration
}

func (f *flowFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "path to YAML configuration file")
	fs.StringVar(&f.hostOrigin, "host-origin", defaultHostOrigin, "origin presented to the frame")
	fs.StringVar(&f.mtid, "mtid", "", "merchant transaction id (default: random)")
	fs.DurationVar(&f.wait, "wait", 2*time.Minute, "maximum time to wait for the frame")
}

func newHost(cfg config.AppConfig, hostOrigin string) (*host.Host, error) {
	neg, err := vault.NewNegotiator(cfg.NegotiatorConfig())
	if err != nil {
		return nil, err
	}
	ctrl, err := embed.NewController(cfg.EmbedConfig(), transport.WebSocketDialer{HostOrigin: hostOrigin})
	if err != nil {
		return nil, err
	}
	return host.New(neg, ctrl), nil
}

func runTokenize(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var ff flowFlags
	fs := flag.NewFlagSet("vaultctl tokenize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ff.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, cleanup, err := bootstrap(ctx, ff.configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	defer cleanup()

	h, err := newHost(cfg, ff.hostOrigin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(ctx, ff.wait)
	defer cancel()

	if _, err := h.Start(ctx, cfg.Credentials(merchantTxn(ff.mtid)), embed.Target{Flow: embed.FlowTokenize}); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Submit until the frame accepts the card or the context ends.
	logger := xglog.WithComponent("vaultctl")
	if _, err := h.Submit(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for {
		select {
		case out, ok := <-h.Outcomes():
			if !ok {
				fmt.Fprintln(stderr, "Error: host closed")
				return 1
			}
			if out.Kind == channel.OutcomeInvalidCard {
				logger.Warn().Str(xglog.FieldTraceID, out.TraceID).Msg("frame reported the card as invalid")
				fmt.Fprintln(stderr, "Error: card rejected by frame validation")
				return 1
			}
			if !out.Terminal() {
				continue
			}
			return reportTerminal(stdout, stderr, out)
		case <-ctx.Done():
			fmt.Fprintf(stderr, "Error: %v\n", ctx.Err())
			return 1
		}
	}
}

func runDetokenize(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var ff flowFlags
	fs := flag.NewFlagSet("vaultctl detokenize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ff.register(fs)
	token := fs.String("token", "", "auv token to reveal (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*token) == "" {
		fmt.Fprintln(stderr, "Error: -token is required")
		return 2
	}

	cfg, cleanup, err := bootstrap(ctx, ff.configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	defer cleanup()

	h, err := newHost(cfg, ff.hostOrigin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(ctx, ff.wait)
	defer cancel()

	target := embed.Target{Flow: embed.FlowDetokenize, AuvToken: *token}
	if _, err := h.Start(ctx, cfg.Credentials(merchantTxn(ff.mtid)), target); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	for {
		select {
		case out, ok := <-h.Outcomes():
			if !ok {
				fmt.Fprintln(stderr, "Error: host closed")
				return 1
			}
			if out.Kind == channel.OutcomeDecrypted {
				writeJSON(stdout, flowOutput{Outcome: out.Kind.String(), TraceID: out.TraceID})
				return 0
			}
			if out.Terminal() {
				return reportTerminal(stdout, stderr, out)
			}
		case <-ctx.Done():
			fmt.Fprintf(stderr, "Error: %v\n", ctx.Err())
			return 1
		}
	}
}

func reportTerminal(stdout, stderr io.Writer, out host.Outcome) int {
	if out.Err != nil {
		if errors.Is(out.Err, channel.ErrSessionExpired) {
			fmt.Fprintf(stderr, "Error: %v (negotiate a new session)\n", out.Err)
			return 1
		}
		fmt.Fprintf(stderr, "Error: %v\n", out.Err)
		return 1
	}
	writeJSON(stdout, flowOutput{
		Outcome:  out.Kind.String(),
		TraceID:  out.TraceID,
		Token:    out.Token,
		CardType: out.CardType,
	})
	return 0
}
