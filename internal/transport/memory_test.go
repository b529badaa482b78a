// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryNetworkRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := NewMemoryNetwork()
	l, err := n.Listen("https://frame.example")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	accepted := make(chan *MemoryConn, 1)
	go func() {
		c, err := l.Accept(ctx)
		if err == nil {
			accepted <- c
		}
	}()

	host, err := n.Dial(ctx, "https://frame.example/embedded-tokenize?sessionID=s1")
	require.NoError(t, err)
	frame := <-accepted

	assert.Equal(t, "https://frame.example", host.PeerOrigin())
	assert.Equal(t, "s1", frame.URL().Query().Get("sessionID"))

	require.NoError(t, host.Send(ctx, []byte(`{"tag":"tokenize"}`)))
	env := <-frame.Receive()
	assert.Equal(t, `{"tag":"tokenize"}`, string(env.Payload))

	require.NoError(t, frame.Send(ctx, []byte(`{"tag":"auv_timeout"}`)))
	env = <-host.Receive()
	assert.Equal(t, "https://frame.example", env.Origin, "inbound envelopes carry the frame origin")

	require.NoError(t, frame.Close())
	_, open := <-host.Receive()
	assert.False(t, open, "closing either end ends the connection")
	require.ErrorIs(t, host.Send(ctx, []byte("x")), ErrNoSubscriber)
	require.NoError(t, host.Close())
}

func TestMemoryNetworkDialUnknownOrigin(t *testing.T) {
	n := NewMemoryNetwork()
	_, err := n.Dial(context.Background(), "https://nowhere.example/x")
	require.ErrorIs(t, err, ErrNoListener)

	_, err = n.Dial(context.Background(), "ftp://nowhere.example/x")
	require.ErrorIs(t, err, ErrUnsupportedURL)
}

func TestMemoryNetworkDialHonoursContext(t *testing.T) {
	n := NewMemoryNetwork()
	l, err := n.Listen("http://frame.local:8099")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = n.Dial(ctx, "http://frame.local:8099/embedded-tokenize")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryListenerOriginIsUnique(t *testing.T) {
	n := NewMemoryNetwork()
	l, err := n.Listen("https://frame.example")
	require.NoError(t, err)
	_, err = n.Listen("HTTPS://FRAME.example")
	require.Error(t, err)

	require.NoError(t, l.Close())
	_, err = l.Accept(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	_, err = n.Listen("https://frame.example")
	require.NoError(t, err)
}

func TestOrigin(t *testing.T) {
	tests := map[string]string{
		"https://Frame.Example/embedded?x=1": "https://frame.example",
		"http://127.0.0.1:8099/a":            "http://127.0.0.1:8099",
		"wss://frame.example/ws":             "https://frame.example",
		"ws://localhost:1/ws":                "http://localhost:1",
	}
	for in, want := range tests {
		got, err := Origin(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "/relative", "mailto:x@y", "https://"} {
		_, err := Origin(bad)
		assert.ErrorIs(t, err, ErrUnsupportedURL, bad)
	}
}
