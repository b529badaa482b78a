// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vaultembed/internal/log"
	"github.com/ManuGH/vaultembed/internal/transport"
)

// ServerConfig configures the HTTP surface of the simulator.
type ServerConfig struct {
	// AllowedOrigins lists host origins allowed to embed the frame; empty allows any.
	AllowedOrigins []string
	// LoadsPerMinute limits context loads per client IP; zero disables the limit.
	LoadsPerMinute int
	// Extra routes mounted next to the frame endpoints (e.g. /metrics).
	Extra map[string]http.Handler
}

// Server exposes a Frame over websocket and tracks live sessions.
type Server struct {
	frame    *Frame
	acceptor *transport.Acceptor
	cfg      ServerConfig
	logger   zerolog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer returns a server for f.
func NewServer(f *Frame, cfg ServerConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		frame:    f,
		acceptor: &transport.Acceptor{AllowedOrigins: cfg.AllowedOrigins},
		cfg:      cfg,
		logger:   log.WithComponent("frame-sim"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler returns the chi router serving the frame endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	for path, h := range s.cfg.Extra {
		r.Handle(path, h)
	}

	r.Group(func(r chi.Router) {
		if s.cfg.LoadsPerMinute > 0 {
			r.Use(httprate.Limit(
				s.cfg.LoadsPerMinute,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("Retry-After", "60")
					w.WriteHeader(http.StatusTooManyRequests)
					_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
				}),
			))
		}
		r.Get(PathTokenize, s.serveFrame)
		r.Get(PathDetokenize, s.serveFrame)
	})
	return r
}

func (s *Server) serveFrame(w http.ResponseWriter, r *http.Request) {
	conn, err := s.acceptor.Accept(w, r)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Debug().Err(err).Str(log.FieldOrigin, r.Header.Get("Origin")).Msg("frame upgrade refused")
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer conn.Close()

	u := *r.URL
	if err := s.frame.Serve(s.ctx, conn, &u); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Msg("frame session ended")
	}
}

// ServeMemory accepts in-process connections from l until ctx ends or l closes.
func (s *Server) ServeMemory(ctx context.Context, l *transport.MemoryListener) error {
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			_ = s.frame.Serve(s.ctx, conn, conn.URL())
		}()
	}
}

// Shutdown ends every live frame session and waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
