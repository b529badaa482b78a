// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package embed owns the lifecycle of the isolated frame: at most one session
// and one loaded context per Controller.
package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vaultembed/internal/log"
	"github.com/ManuGH/vaultembed/internal/metrics"
	"github.com/ManuGH/vaultembed/internal/transport"
	"github.com/ManuGH/vaultembed/internal/vault"
)

var (
	ErrAlreadyLoaded  = errors.New("embed: a context is already loaded")
	ErrNotLoaded      = errors.New("embed: no context loaded")
	ErrBusy           = errors.New("embed: negotiation already in progress")
	ErrInvalidSession = errors.New("embed: session has no id")
	ErrUnknownFlow    = errors.New("embed: unknown flow")
	ErrInvalidTarget  = errors.New("embed: invalid load target")
)

// State is the controller state.
type State string

const (
	StateIdle        State = "idle"
	StateNegotiating State = "negotiating"
	StateLoaded      State = "loaded"
)

// View is the visible section of the host UI.
type View string

const (
	ViewCredentials View = "credentials" // pre-session form
	ViewOutput      View = "output"      // frame shown
)

// Config describes where frames are served.
type Config struct {
	TokenizeURL   string
	DetokenizeURL string
	// Origin is the expected sender origin; empty derives it from the frame url.
	Origin    string
	CardTypes []string
}

// Loaded is the capability obtained when a context is loaded.
type Loaded struct {
	Generation uint64
	Session    vault.Session
	Flow       Flow
	URL        string
	Origin     string
	Conn       transport.Conn
}

// Controller owns the isolated context lifecycle.
type Controller struct {
	cfg    Config
	dialer transport.Dialer
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	gen      uint64
	current  *Loaded
	view     View
	observer func(View)
}

// Option customises a Controller.
type Option func(*Controller)

// WithViewObserver is called with every view change, outside the controller lock.
func WithViewObserver(f func(View)) Option {
	return func(c *Controller) { c.observer = f }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController returns an idle controller.
func NewController(cfg Config, dialer transport.Dialer, opts ...Option) (*Controller, error) {
	if dialer == nil {
		return nil, fmt.Errorf("embed: nil dialer")
	}
	if cfg.TokenizeURL == "" && cfg.DetokenizeURL == "" {
		return nil, fmt.Errorf("embed: no frame url configured")
	}
	c := &Controller{
		cfg:    cfg,
		dialer: dialer,
		logger: log.WithComponent("embed"),
		state:  StateIdle,
		view:   ViewCredentials,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the frame configuration.
func (c *Controller) Config() Config { return c.cfg }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns the visible view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Generation returns the id of the most recently loaded context.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// CurrentSession returns the active session, if any.
func (c *Controller) CurrentSession() (vault.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return vault.Session{}, false
	}
	return c.current.Session, true
}

// Current returns the loaded context, if any.
func (c *Controller) Current() (Loaded, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Loaded{}, false
	}
	return *c.current, true
}

// BeginNegotiation moves Idle to Negotiating.
func (c *Controller) BeginNegotiation() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle:
		c.setState(StateNegotiating, "negotiation started")
		return nil
	case StateNegotiating:
		return ErrBusy
	default:
		return ErrAlreadyLoaded
	}
}

// AbortNegotiation returns a failed negotiation to Idle.
func (c *Controller) AbortNegotiation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNegotiating {
		c.setState(StateIdle, "negotiation aborted")
	}
}

// Load embeds the frame for sess. It fails fast with ErrAlreadyLoaded rather
// than replacing a live session.
func (c *Controller) Load(ctx context.Context, sess vault.Session, t Target) (Loaded, error) {
	c.mu.Lock()
	if c.state == StateLoaded {
		c.mu.Unlock()
		return Loaded{}, ErrAlreadyLoaded
	}
	if !sess.Valid() {
		c.mu.Unlock()
		return Loaded{}, ErrInvalidSession
	}

	loadURL, err := c.cfg.LoadURL(sess, t)
	if err != nil {
		c.mu.Unlock()
		return Loaded{}, err
	}
	origin := c.cfg.Origin
	if origin == "" {
		if origin, err = transport.Origin(loadURL); err != nil {
			c.mu.Unlock()
			return Loaded{}, err
		}
	}

	c.gen++
	gen := c.gen
	logger := c.logger.With().
		Str(log.FieldTraceID, sess.TraceID.String()).
		Uint64(log.FieldGeneration, gen).
		Str(log.FieldFlow, string(t.Flow)).
		Logger()

	// Dialing happens under the lock: a concurrent Load or Unload waits for it.
	conn, err := c.dialer.Dial(ctx, loadURL)
	if err != nil {
		if c.state == StateNegotiating {
			c.setState(StateIdle, "load failed")
		}
		c.mu.Unlock()
		logger.Warn().Err(err).Str(log.FieldEvent, "embed.load_failed").Msg("failed to load isolated context")
		return Loaded{}, fmt.Errorf("load context [trace %s]: %w", sess.TraceID, err)
	}

	c.current = &Loaded{
		Generation: gen,
		Session:    sess,
		Flow:       t.Flow,
		URL:        loadURL,
		Origin:     origin,
		Conn:       conn,
	}
	c.setState(StateLoaded, "context loaded")
	notify := c.setView(ViewOutput)
	loaded := *c.current
	c.mu.Unlock()

	metrics.ContextLoaded()
	logger.Info().Str(log.FieldEvent, "embed.loaded").Str(log.FieldOrigin, origin).Msg("isolated context loaded")
	notify()
	return loaded, nil
}

// Unload discards the session and closes the context's address, which halts
// message delivery. It reports whether a context was loaded.
func (c *Controller) Unload(reason string) bool {
	return c.unload(0, reason)
}

// UnloadGeneration unloads only if gen is still the live context.
func (c *Controller) UnloadGeneration(gen uint64, reason string) bool {
	return c.unload(gen, reason)
}

func (c *Controller) unload(gen uint64, reason string) bool {
	c.mu.Lock()
	cur := c.current
	if cur == nil || (gen != 0 && cur.Generation != gen) {
		if c.state == StateNegotiating && gen == 0 {
			c.setState(StateIdle, reason)
		}
		c.mu.Unlock()
		return false
	}
	c.current = nil
	c.setState(StateIdle, reason)
	notify := c.setView(ViewCredentials)
	c.mu.Unlock()

	if err := cur.Conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("closing context connection")
	}
	metrics.ContextUnloaded()
	c.logger.Info().
		Str(log.FieldTraceID, cur.Session.TraceID.String()).
		Uint64(log.FieldGeneration, cur.Generation).
		Str(log.FieldReason, reason).
		Str(log.FieldEvent, "embed.unloaded").
		Msg("isolated context unloaded")
	notify()
	return true
}

// setState must be called with mu held.
func (c *Controller) setState(s State, reason string) {
	if c.state == s {
		return
	}
	c.logger.Debug().
		Str(log.FieldOldState, string(c.state)).
		Str(log.FieldNewState, string(s)).
		Str(log.FieldReason, reason).
		Msg("embed transition")
	c.state = s
}

// setView must be called with mu held; the returned func notifies the observer.
func (c *Controller) setView(v View) func() {
	if c.view == v || c.observer == nil {
		c.view = v
		return func() {}
	}
	c.view = v
	obs := c.observer
	return func() { obs(v) }
}
