// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/vaultembed/internal/log"
	"github.com/ManuGH/vaultembed/internal/metrics"
	"github.com/ManuGH/vaultembed/internal/platform/httpx"
	"github.com/ManuGH/vaultembed/internal/resilience"
	"github.com/ManuGH/vaultembed/internal/telemetry"
)

const (
	// HeaderHMAC carries the hex HMAC-SHA512 of the request body.
	HeaderHMAC = "X-VAULT-HMAC"
	// HeaderTraceUID carries the client trace id.
	HeaderTraceUID = "X-VAULT-TRACE-UID"

	// DefaultTimeout is the hard client-side bound on one negotiation.
	DefaultTimeout = 5 * time.Second

	// DefaultURL is the vault sandbox endpoint.
	DefaultURL = "https://vault02-sb.auricsystems.com/vault/v2/"

	maxResponseBytes = 1 << 20
	maxErrorBody     = 512
)

// Config configures a Negotiator.
type Config struct {
	URL     string
	Timeout time.Duration // capped at DefaultTimeout

	// BreakerThreshold consecutive transport failures open the breaker for BreakerReset.
	// A negative threshold disables the breaker.
	BreakerThreshold int
	BreakerReset     time.Duration
}

// Negotiator performs single-attempt session negotiations against one vault endpoint.
type Negotiator struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
	tracer   trace.Tracer

	now     func() time.Time
	ajaxID  func() int
	traceID func() TraceID
}

// Option customises a Negotiator.
type Option func(*Negotiator)

// WithHTTPClient replaces the hardened default client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Negotiator) { n.http = c }
}

// WithClock fixes the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(n *Negotiator) { n.now = now }
}

// WithAjaxIDSource fixes the request id source.
func WithAjaxIDSource(f func() int) Option {
	return func(n *Negotiator) { n.ajaxID = f }
}

// WithTraceIDSource fixes the trace id source.
func WithTraceIDSource(f func() TraceID) Option {
	return func(n *Negotiator) { n.traceID = f }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Negotiator) { n.logger = l }
}

// NewNegotiator validates cfg and returns a Negotiator.
func NewNegotiator(cfg Config, opts ...Option) (*Negotiator, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		endpoint = DefaultURL
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, fmt.Errorf("vault url %q: must be an absolute http(s) url", endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 || timeout > DefaultTimeout {
		timeout = DefaultTimeout
	}

	n := &Negotiator{
		endpoint: u.String(),
		timeout:  timeout,
		http:     httpx.NewTracedClient(timeout, "vault.get_session"),
		logger:   log.WithComponent("vault"),
		tracer:   telemetry.Tracer("vaultembed/vault"),
		now:      time.Now,
		ajaxID:   RandomAjaxID,
		traceID:  NewTraceID,
	}
	if cfg.BreakerThreshold >= 0 {
		n.breaker = resilience.NewCircuitBreaker("vault", cfg.BreakerThreshold, cfg.BreakerReset)
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Endpoint returns the vault url requests are posted to.
func (n *Negotiator) Endpoint() string { return n.endpoint }

// Build creates the session request for creds using the negotiator's clock and id source.
func (n *Negotiator) Build(creds Credentials) SessionRequest {
	return NewSessionRequest(n.ajaxID(), n.now(), creds)
}

type sessionResult struct {
	LastActionSucceeded flexBool `json:"lastActionSucceeded"`
	SessionID           string   `json:"sessionId"`
}

type sessionResponse struct {
	Result *sessionResult  `json:"result"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Negotiate obtains a session for creds. It resolves within the configured
// timeout: on expiry it returns a NegotiationError of kind ErrTimeout.
func (n *Negotiator) Negotiate(ctx context.Context, creds Credentials) (Session, error) {
	started := time.Now()
	sess, err := n.negotiate(ctx, creds)
	metrics.ObserveNegotiation(outcome(err), time.Since(started))
	return sess, err
}

func (n *Negotiator) negotiate(ctx context.Context, creds Credentials) (Session, error) {
	if err := creds.Validate(); err != nil {
		return Session{}, err
	}

	req := n.Build(creds)
	body, err := req.Canonical()
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	traceID := n.traceID()
	signature, err := Sign(creds.Secret, body)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	ctx = log.ContextWithTraceID(ctx, traceID.String())
	logger := log.WithContext(ctx, n.logger).With().Int(log.FieldAjaxID, req.AjaxID).Logger()

	ctx, span := n.tracer.Start(ctx, "vault.negotiate",
		trace.WithAttributes(telemetry.NegotiationAttributes(traceID.String(), req.AjaxID)...))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var resp sessionResponse
	call := func() error { return n.post(callCtx, body, signature, traceID, &resp) }
	if n.breaker != nil {
		err = n.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		nerr := n.classify(ctx, callCtx, err, traceID, req.AjaxID)
		span.SetStatus(codes.Error, nerr.Kind.Error())
		span.SetAttributes(telemetry.ErrorAttributes(nerr, outcome(nerr))...)
		logger.Warn().
			Err(nerr).
			Str(log.FieldEvent, "vault.negotiate_failed").
			Msg("vault session negotiation failed")
		return Session{}, nerr
	}

	if !bool(resp.Result.LastActionSucceeded) {
		nerr := &NegotiationError{
			Kind:    ErrRejected,
			TraceID: traceID,
			AjaxID:  req.AjaxID,
			Remote:  remotePayload(resp.Error),
		}
		span.SetStatus(codes.Error, ErrRejected.Error())
		logger.Warn().
			Str(log.FieldEvent, "vault.session_rejected").
			Str("remote", nerr.Remote).
			Msg("vault rejected session request")
		return Session{}, nerr
	}
	if resp.Result.SessionID == "" {
		nerr := &NegotiationError{
			Kind:    ErrTransport,
			TraceID: traceID,
			AjaxID:  req.AjaxID,
			Err:     fmt.Errorf("%w: success without sessionId", ErrMalformedResponse),
		}
		span.SetStatus(codes.Error, nerr.Error())
		logger.Warn().Err(nerr).Str(log.FieldEvent, "vault.negotiate_failed").Msg("vault response carried no session")
		return Session{}, nerr
	}

	logger.Info().
		Str(log.FieldEvent, "vault.session_issued").
		Msg("vault session issued")

	return Session{ID: resp.Result.SessionID, TraceID: traceID, IssuedAt: n.now()}, nil
}

// post sends the signed request and decodes a session response into out.
// Errors returned here count against the breaker; a well-formed rejection does not.
func (n *Negotiator) post(ctx context.Context, body []byte, signature string, traceID TraceID, out *sessionResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderHMAC, signature)
	req.Header.Set(HeaderTraceUID, traceID.String())

	res, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &statusError{status: res.StatusCode, body: truncate(string(raw), maxErrorBody)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Result == nil {
		return fmt.Errorf("%w: missing result", ErrMalformedResponse)
	}
	return nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func (n *Negotiator) classify(parent, call context.Context, err error, traceID TraceID, ajaxID int) *NegotiationError {
	nerr := &NegotiationError{Kind: ErrTransport, TraceID: traceID, AjaxID: ajaxID, Err: err}

	var se *statusError
	if errors.As(err, &se) {
		nerr.Status = se.status
		return nerr
	}

	// Our own budget expiring is a Timeout; a caller cancellation stays a transport failure.
	if parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded) {
		nerr.Kind = ErrTimeout
		return nerr
	}
	var ne net.Error
	if parent.Err() == nil && errors.As(err, &ne) && ne.Timeout() {
		nerr.Kind = ErrTimeout
	}
	return nerr
}

// flexBool decodes the vault's boolean-as-integer flags (0/1, true/false, "0"/"1").
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch s {
	case "1", "true":
		*b = true
	case "0", "false", "null", "":
		*b = false
	default:
		return fmt.Errorf("lastActionSucceeded: unexpected value %s", data)
	}
	return nil
}

// remotePayload renders the vault's error field verbatim; strings are unquoted.
func remotePayload(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
