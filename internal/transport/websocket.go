// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/vaultembed/internal/log"
)

const (
	// DefaultHandshakeTimeout bounds the websocket upgrade.
	DefaultHandshakeTimeout = 5 * time.Second

	writeWait    = 10 * time.Second
	maxFrameSize = 64 << 10
	recvBuf      = 16
)

// WebSocketDialer connects to a frame served over websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	// HostOrigin is sent as the Origin header so the frame can verify its embedder.
	HostOrigin string
}

// Dial opens a websocket to loadURL; http(s) urls are mapped to ws(s).
// The peer origin recorded on every envelope is the origin of loadURL.
func (d WebSocketDialer) Dial(ctx context.Context, loadURL string) (Conn, error) {
	u, err := url.Parse(loadURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	origin, err := originOf(u)
	if err != nil {
		return nil, err
	}

	wsURL := *u
	switch strings.ToLower(u.Scheme) {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	header := http.Header{}
	if d.HostOrigin != "" {
		header.Set("Origin", d.HostOrigin)
	}

	ws, resp, err := dialer.DialContext(ctx, wsURL.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: handshake status %d: %w", origin, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", origin, err)
	}
	return newWSConn(ws, origin), nil
}

// Acceptor upgrades frame-side websocket requests.
type Acceptor struct {
	// AllowedOrigins lists the host origins allowed to embed the frame.
	// Empty allows any origin.
	AllowedOrigins []string
}

// Accept upgrades r. The returned connection records the request Origin header as peer.
func (a *Acceptor) Accept(w http.ResponseWriter, r *http.Request) (Conn, error) {
	up := websocket.Upgrader{
		HandshakeTimeout: DefaultHandshakeTimeout,
		CheckOrigin:      a.checkOrigin,
	}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(ws, r.Header.Get("Origin")), nil
}

func (a *Acceptor) checkOrigin(r *http.Request) bool {
	if len(a.AllowedOrigins) == 0 {
		return true
	}
	got := r.Header.Get("Origin")
	for _, o := range a.AllowedOrigins {
		if strings.EqualFold(o, got) {
			return true
		}
	}
	return false
}

type wsConn struct {
	ws     *websocket.Conn
	origin string
	in     chan Envelope

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
	cancel  context.CancelFunc
	g       *errgroup.Group
}

func newWSConn(ws *websocket.Conn, origin string) *wsConn {
	ws.SetReadLimit(maxFrameSize)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	c := &wsConn{
		ws:     ws,
		origin: origin,
		in:     make(chan Envelope, recvBuf),
		closed: make(chan struct{}),
		cancel: cancel,
		g:      g,
	}
	g.Go(c.readPump)
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks ReadMessage once the pump or Close gives up on the socket.
		return c.ws.Close()
	})
	return c
}

func (c *wsConn) readPump() error {
	defer close(c.in)
	defer c.cancel()

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.L().Debug().Err(err).Str(log.FieldOrigin, c.origin).Msg("websocket read ended")
			}
			return nil
		}
		if typ != websocket.TextMessage {
			continue
		}
		select {
		case c.in <- Envelope{Origin: c.origin, Payload: data}:
		case <-c.closed:
			return nil
		}
	}
}

func (c *wsConn) PeerOrigin() string { return c.origin }

func (c *wsConn) Receive() <-chan Envelope { return c.in }

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrClosed
		}
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close sends a close frame, tears down the socket and waits for the pumps.
func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "context unloaded"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.cancel()
	})
	_ = c.g.Wait()
	return nil
}
