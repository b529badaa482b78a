// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transport provides the cross-context messaging primitive between the
// host and an isolated frame. Every received envelope is stamped with the
// sender origin as observed by the transport, never as claimed by the payload.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrClosed         = errors.New("transport: connection closed")
	ErrNoListener     = errors.New("transport: no frame listening at origin")
	ErrNoSubscriber   = errors.New("transport: no subscriber for topic")
	ErrUnsupportedURL = errors.New("transport: unsupported url")
)

// Envelope is one received message.
type Envelope struct {
	Origin  string
	Payload []byte
}

// Conn is one end of a host/frame connection.
type Conn interface {
	// Send delivers payload to the peer. It is safe for concurrent use.
	Send(ctx context.Context, payload []byte) error
	// Receive yields inbound envelopes; it is closed when the connection ends.
	Receive() <-chan Envelope
	// PeerOrigin is the origin of the other end.
	PeerOrigin() string
	Close() error
}

// Dialer opens a host-side connection to the frame served at loadURL.
type Dialer interface {
	Dial(ctx context.Context, loadURL string) (Conn, error)
}

// Origin returns scheme://host for an absolute http(s) or ws(s) url.
// Websocket schemes map to their http equivalents.
func Origin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	return originOf(u)
}

func originOf(u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrUnsupportedURL)
	}
	return scheme + "://" + strings.ToLower(u.Host), nil
}
