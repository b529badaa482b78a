// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
)

const (
	dirToFrame = "to_frame"
	dirToHost  = "to_host"
)

// MemoryNetwork connects hosts and frames living in the same process.
// Frames listen on an origin; hosts dial a load url whose origin selects the frame.
type MemoryNetwork struct {
	bus *MemoryBus

	mu        sync.Mutex
	listeners map[string]*MemoryListener
}

// NewMemoryNetwork returns an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{bus: NewMemoryBus(), listeners: make(map[string]*MemoryListener)}
}

// Listen registers a frame at origin.
func (n *MemoryNetwork) Listen(origin string) (*MemoryListener, error) {
	o, err := Origin(origin)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.listeners[o]; exists {
		return nil, fmt.Errorf("listen %s: origin already in use", o)
	}
	l := &MemoryListener{net: n, origin: o, accept: make(chan *MemoryConn), done: make(chan struct{})}
	n.listeners[o] = l
	return l, nil
}

// Dial connects to the frame listening at loadURL's origin.
func (n *MemoryNetwork) Dial(ctx context.Context, loadURL string) (Conn, error) {
	u, err := url.Parse(loadURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	origin, err := originOf(u)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	l, ok := n.listeners[origin]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dial %s: %w", origin, ErrNoListener)
	}

	id := uuid.NewString()
	p := &memoryPipe{
		toFrame: n.bus.Subscribe("conn/" + id + "/" + dirToFrame),
		toHost:  n.bus.Subscribe("conn/" + id + "/" + dirToHost),
	}
	host := &MemoryConn{pipe: p, bus: n.bus, sendTopic: p.toFrame.topic, sub: p.toHost, peer: origin, url: u}
	frame := &MemoryConn{pipe: p, bus: n.bus, sendTopic: p.toHost.topic, sub: p.toFrame, peer: "", url: u}

	select {
	case l.accept <- frame:
		return host, nil
	case <-l.done:
		p.close()
		return nil, fmt.Errorf("dial %s: %w", origin, ErrNoListener)
	case <-ctx.Done():
		p.close()
		return nil, fmt.Errorf("dial %s: %w", origin, ctx.Err())
	}
}

// MemoryListener accepts frame-side connections for one origin.
type MemoryListener struct {
	net    *MemoryNetwork
	origin string
	accept chan *MemoryConn
	done   chan struct{}
	once   sync.Once
}

// Origin returns the origin this listener serves.
func (l *MemoryListener) Origin() string { return l.origin }

// Accept waits for the next host connection.
func (l *MemoryListener) Accept(ctx context.Context) (*MemoryConn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unregisters the listener. Established connections stay open.
func (l *MemoryListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.net.mu.Lock()
		if l.net.listeners[l.origin] == l {
			delete(l.net.listeners, l.origin)
		}
		l.net.mu.Unlock()
	})
	return nil
}

type memoryPipe struct {
	once    sync.Once
	toFrame *Subscription
	toHost  *Subscription
}

// close tears down both directions; either side closing ends the connection.
func (p *memoryPipe) close() {
	p.once.Do(func() {
		_ = p.toFrame.Close()
		_ = p.toHost.Close()
	})
}

// MemoryConn is one end of an in-process connection.
type MemoryConn struct {
	pipe      *memoryPipe
	bus       *MemoryBus
	sendTopic string
	sub       *Subscription
	peer      string
	url       *url.URL
}

// URL is the load url the host dialed.
func (c *MemoryConn) URL() *url.URL {
	u := *c.url
	return &u
}

func (c *MemoryConn) PeerOrigin() string { return c.peer }

func (c *MemoryConn) Send(ctx context.Context, payload []byte) error {
	env := Envelope{Payload: append([]byte(nil), payload...)}
	// The receiving host sees the frame's origin; the frame sees the host as unnamed.
	if c.sendTopic == c.pipe.toHost.topic {
		env.Origin = c.originOfSelf()
	}
	return c.bus.Publish(ctx, c.sendTopic, env)
}

func (c *MemoryConn) originOfSelf() string {
	o, _ := originOf(c.url)
	return o
}

func (c *MemoryConn) Receive() <-chan Envelope { return c.sub.C() }

func (c *MemoryConn) Close() error {
	c.pipe.close()
	return nil
}
