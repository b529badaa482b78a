// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package host drives one embedding end to end: negotiate a vault session,
// load the isolated frame, pump its messages through the channel machine and
// unload on every terminal outcome.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vaultembed/internal/channel"
	"github.com/ManuGH/vaultembed/internal/embed"
	"github.com/ManuGH/vaultembed/internal/log"
	"github.com/ManuGH/vaultembed/internal/transport"
	"github.com/ManuGH/vaultembed/internal/vault"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("host: closed")

const outcomeBuffer = 16

// Negotiator obtains vault sessions.
type Negotiator interface {
	Negotiate(ctx context.Context, creds vault.Credentials) (vault.Session, error)
}

// Outcome is a user-visible channel event. Terminal outcomes are delivered once.
type Outcome struct {
	Kind     channel.OutcomeKind
	TraceID  string
	Token    string
	CardType string
	Err      error
}

// Terminal reports whether the context was unloaded.
func (o Outcome) Terminal() bool { return o.Kind.Terminal() }

// Host owns one controller and its channel machine.
type Host struct {
	negotiator Negotiator
	ctrl       *embed.Controller
	machine    *channel.Machine
	logger     zerolog.Logger

	outcomes chan Outcome
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option customises a Host.
type Option func(*Host)

// WithMachine replaces the channel machine.
func WithMachine(m *channel.Machine) Option {
	return func(h *Host) { h.machine = m }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// New returns a host. ctrl must not be shared with another host.
func New(n Negotiator, ctrl *embed.Controller, opts ...Option) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		negotiator: n,
		ctrl:       ctrl,
		machine:    channel.NewMachine(),
		logger:     log.WithComponent("host"),
		outcomes:   make(chan Outcome, outcomeBuffer),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Controller exposes the embedding controller, e.g. for its view.
func (h *Host) Controller() *embed.Controller { return h.ctrl }

// Outcomes yields user-visible events. It is closed by Close.
func (h *Host) Outcomes() <-chan Outcome { return h.outcomes }

// Start negotiates a session for creds and loads the frame for t.
// It fails with embed.ErrAlreadyLoaded while a context is live.
func (h *Host) Start(ctx context.Context, creds vault.Credentials, t embed.Target) (vault.Session, error) {
	if h.isClosed() {
		return vault.Session{}, ErrClosed
	}
	if err := h.ctrl.BeginNegotiation(); err != nil {
		return vault.Session{}, err
	}

	creds.Retention = t.Flow.Retention(creds.Retention)
	sess, err := h.negotiator.Negotiate(ctx, creds)
	if err != nil {
		h.ctrl.AbortNegotiation()
		return vault.Session{}, err
	}

	loaded, err := h.ctrl.Load(ctx, sess, t)
	if err != nil {
		h.ctrl.AbortNegotiation()
		return vault.Session{}, err
	}

	if err := h.machine.Attach(loaded.Generation, loaded.Origin, sess.TraceID.String(), loaded.Conn); err != nil {
		h.ctrl.UnloadGeneration(loaded.Generation, "attach failed")
		return vault.Session{}, fmt.Errorf("attach context [trace %s]: %w", sess.TraceID, err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.machine.Detach("navigation")
		h.ctrl.UnloadGeneration(loaded.Generation, "navigation")
		return vault.Session{}, ErrClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()
	go h.pump(loaded)

	h.logger.Info().
		Str(log.FieldTraceID, sess.TraceID.String()).
		Str(log.FieldSessionID, sess.ID).
		Uint64(log.FieldGeneration, loaded.Generation).
		Str(log.FieldFlow, string(t.Flow)).
		Str(log.FieldEvent, "host.started").
		Msg("vault frame started")
	return sess, nil
}

// Submit asks the frame to validate the credential; a matching affirmative
// answer triggers tokenization. Rapid re-submission supersedes earlier requests.
func (h *Host) Submit(ctx context.Context) (string, error) {
	if h.isClosed() {
		return "", ErrClosed
	}
	if h.ctrl.State() != embed.StateLoaded {
		return "", embed.ErrNotLoaded
	}
	id, err := h.machine.RequestValidation(ctx)
	if errors.Is(err, channel.ErrNotAttached) {
		return "", embed.ErrNotLoaded
	}
	return id, err
}

// Wait returns the next terminal outcome, skipping non-terminal ones.
func (h *Host) Wait(ctx context.Context) (Outcome, error) {
	for {
		select {
		case out, ok := <-h.outcomes:
			if !ok {
				return Outcome{}, ErrClosed
			}
			if out.Terminal() {
				return out, nil
			}
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
}

// Close models host navigation: any context is unloaded and the session dropped.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	// Cancel and unload first: closing the connection releases any send
	// still blocked on a frame that stopped reading.
	h.cancel()
	h.ctrl.Unload("navigation")
	h.machine.Detach("navigation")
	h.wg.Wait()
	close(h.outcomes)
	return nil
}

func (h *Host) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// pump feeds one context's envelopes to the machine until the connection ends.
func (h *Host) pump(l embed.Loaded) {
	defer h.wg.Done()

	for env := range l.Conn.Receive() {
		out := h.machine.Handle(h.ctx, channel.Inbound{
			Generation: l.Generation,
			Origin:     env.Origin,
			Payload:    env.Payload,
		})
		h.dispatch(l, out)
	}

	// The frame hung up without a terminal message.
	if h.ctrl.Generation() == l.Generation && h.machine.State().Loaded() {
		h.machine.Detach("connection lost")
		if h.ctrl.UnloadGeneration(l.Generation, "connection lost") {
			h.emit(Outcome{
				Kind:    channel.OutcomeFailed,
				TraceID: l.Session.TraceID.String(),
				Err: &channel.Error{
					Kind:    channel.ErrTransport,
					TraceID: l.Session.TraceID.String(),
					Err:     transport.ErrClosed,
				},
			})
		}
	}
}

func (h *Host) dispatch(l embed.Loaded, out channel.Outcome) {
	switch out.Kind {
	case channel.OutcomeDropped, channel.OutcomeTokenizing:
		return
	}
	if out.Terminal() {
		h.ctrl.UnloadGeneration(l.Generation, out.Kind.String())
	}
	h.emit(Outcome{
		Kind:     out.Kind,
		TraceID:  out.TraceID,
		Token:    out.Token,
		CardType: out.CardType,
		Err:      out.Err,
	})
}

func (h *Host) emit(o Outcome) {
	select {
	case h.outcomes <- o:
	case <-h.ctx.Done():
		h.logger.Debug().Str(log.FieldTraceID, o.TraceID).Str(log.FieldEvent, o.Kind.String()).Msg("outcome discarded after close")
	}
}
