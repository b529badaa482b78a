// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package vault

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vaultembed/internal/resilience"
)

type capturedRequest struct {
	method    string
	body      string
	signature string
	traceUID  string
}

func newTestNegotiator(t *testing.T, url string, cfg Config, opts ...Option) *Negotiator {
	t.Helper()
	cfg.URL = url
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithAjaxIDSource(func() int { return 42 }),
		WithTraceIDSource(func() TraceID { return "11111111-2222-4333-8444-555555555555" }),
		WithLogger(zerolog.New(io.Discard)),
	}
	n, err := NewNegotiator(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return n
}

func vaultServer(t *testing.T, status int, response string, captured chan<- capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			captured <- capturedRequest{
				method:    r.Method,
				body:      string(body),
				signature: r.Header.Get(HeaderHMAC),
				traceUID:  r.Header.Get(HeaderTraceUID),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNegotiateScenario(t *testing.T) {
	captured := make(chan capturedRequest, 1)
	srv := vaultServer(t, http.StatusOK, `{"result":{"lastActionSucceeded":1,"sessionId":"sid123"}}`, captured)
	n := newTestNegotiator(t, srv.URL, Config{})

	sess, err := n.Negotiate(context.Background(), scenarioCredentials())
	require.NoError(t, err)
	assert.Equal(t, "sid123", sess.ID)
	assert.Equal(t, TraceID("11111111-2222-4333-8444-555555555555"), sess.TraceID)
	assert.True(t, sess.Valid())

	req := <-captured
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, scenarioBody, req.body)
	assert.Equal(t, "11111111-2222-4333-8444-555555555555", req.traceUID)

	want, err := HMACSHA512(HexSecret("abc"), []byte(scenarioBody))
	require.NoError(t, err)
	assert.Equal(t, want, req.signature)
	assert.NotContains(t, req.body, "abc", "the secret is never transmitted")
}

func TestNegotiateRejected(t *testing.T) {
	srv := vaultServer(t, http.StatusOK, `{"result":{"lastActionSucceeded":0},"error":"Invalid HMAC"}`, nil)
	n := newTestNegotiator(t, srv.URL, Config{})

	_, err := n.Negotiate(context.Background(), scenarioCredentials())
	require.ErrorIs(t, err, ErrRejected)

	var nerr *NegotiationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "Invalid HMAC", nerr.Remote)
	assert.Equal(t, TraceID("11111111-2222-4333-8444-555555555555"), nerr.TraceID)
	assert.Contains(t, err.Error(), "11111111-2222-4333-8444-555555555555")
}

func TestNegotiateRejectedWithObjectPayload(t *testing.T) {
	srv := vaultServer(t, http.StatusOK, `{"result":{"lastActionSucceeded":false},"error":{"code":17,"text":"stale"}}`, nil)
	n := newTestNegotiator(t, srv.URL, Config{})

	_, err := n.Negotiate(context.Background(), scenarioCredentials())
	var nerr *NegotiationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, ErrRejected, nerr.Kind)
	assert.JSONEq(t, `{"code":17,"text":"stale"}`, nerr.Remote)
}

func TestNegotiateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only notices the client going away once the body is consumed.
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	n := newTestNegotiator(t, srv.URL, Config{Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := n.Negotiate(context.Background(), scenarioCredentials())
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, elapsed, time.Second, "negotiate must resolve within its budget")
}

func TestNegotiateTimeoutIsCappedAtFiveSeconds(t *testing.T) {
	n := newTestNegotiator(t, "https://vault.example", Config{Timeout: time.Minute})
	assert.Equal(t, DefaultTimeout, n.timeout)
}

func TestNegotiateCallerCancellationIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	n := newTestNegotiator(t, srv.URL, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := n.Negotiate(ctx, scenarioCredentials())
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNegotiateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	n := newTestNegotiator(t, url, Config{})
	_, err := n.Negotiate(context.Background(), scenarioCredentials())
	require.ErrorIs(t, err, ErrTransport)
}

func TestNegotiateHTTPErrorStatus(t *testing.T) {
	srv := vaultServer(t, http.StatusBadGateway, "upstream down", nil)
	n := newTestNegotiator(t, srv.URL, Config{})

	_, err := n.Negotiate(context.Background(), scenarioCredentials())
	var nerr *NegotiationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, ErrTransport, nerr.Kind)
	assert.Equal(t, http.StatusBadGateway, nerr.Status)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestNegotiateMalformedResponses(t *testing.T) {
	for name, body := range map[string]string{
		"not json":          `<html>`,
		"missing result":    `{"error":null}`,
		"missing sessionId": `{"result":{"lastActionSucceeded":1}}`,
		"bad flag":          `{"result":{"lastActionSucceeded":"maybe","sessionId":"x"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := vaultServer(t, http.StatusOK, body, nil)
			n := newTestNegotiator(t, srv.URL, Config{})

			_, err := n.Negotiate(context.Background(), scenarioCredentials())
			require.ErrorIs(t, err, ErrTransport)
			require.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestNegotiateInvalidCredentialsSendsNothing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	n := newTestNegotiator(t, srv.URL, Config{})
	creds := scenarioCredentials()
	creds.ConfigurationID = ""

	_, err := n.Negotiate(context.Background(), creds)
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, hits.Load())
}

func TestNegotiateBreakerOpensOnTransportFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := newTestNegotiator(t, srv.URL, Config{BreakerThreshold: 2, BreakerReset: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := n.Negotiate(context.Background(), scenarioCredentials())
		require.ErrorIs(t, err, ErrTransport)
	}
	_, err := n.Negotiate(context.Background(), scenarioCredentials())
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not contact the vault")
}

func TestNegotiateRejectionDoesNotTripBreaker(t *testing.T) {
	srv := vaultServer(t, http.StatusOK, `{"result":{"lastActionSucceeded":0},"error":"nope"}`, nil)
	n := newTestNegotiator(t, srv.URL, Config{BreakerThreshold: 1, BreakerReset: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := n.Negotiate(context.Background(), scenarioCredentials())
		require.ErrorIs(t, err, ErrRejected)
	}
	assert.Equal(t, resilience.StateClosed, n.breaker.State())
}

func TestNewNegotiatorValidatesURL(t *testing.T) {
	_, err := NewNegotiator(Config{URL: "ftp://vault"})
	require.Error(t, err)
	_, err = NewNegotiator(Config{URL: "not a url"})
	require.Error(t, err)

	n, err := NewNegotiator(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, n.Endpoint())
}

func TestNegotiationErrorMessage(t *testing.T) {
	err := &NegotiationError{Kind: ErrRejected, TraceID: "t-1", Remote: "denied"}
	assert.Equal(t, "get_session: vault: session request rejected: denied [trace t-1]", err.Error())
}
