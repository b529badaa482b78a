// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sim is a stand-in for the vault-controlled frame. It speaks the
// frame side of the channel protocol against a configured card number and can
// be scripted to fail, expire or report field errors.
package sim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vaultembed/internal/channel"
	"github.com/ManuGH/vaultembed/internal/log"
	"github.com/ManuGH/vaultembed/internal/transport"
)

// Paths served by the simulator.
const (
	PathTokenize   = "/embedded-tokenize"
	PathDetokenize = "/embedded-detokenize"
)

// Failure scripts a terminal failure.
type Failure string

const (
	FailNone        Failure = ""
	FailError       Failure = "error"        // auv_error instead of auv_ok
	FailExpire      Failure = "expire"       // auv_timeout instead of auv_ok
	FailFieldErrors Failure = "field_errors" // validation_errors on load
)

// Config drives the simulated frame.
type Config struct {
	// CardNumber is what the user typed into the frame.
	CardNumber string
	// Fail scripts the terminal answer.
	Fail Failure
	// ErrorCode and ErrorMessage are sent with FailError.
	ErrorCode    string
	ErrorMessage string
	// SessionLifetime, when positive, expires the session with auv_timeout.
	SessionLifetime time.Duration
	// ValidationDelay delays every cc_valid answer.
	ValidationDelay time.Duration
	// TokenSalt makes tokens differ between simulator instances.
	TokenSalt string
}

// Frame serves frame-side connections.
type Frame struct {
	cfg    Config
	logger zerolog.Logger
}

// New returns a simulated frame.
func New(cfg Config) *Frame {
	if cfg.ErrorCode == "" {
		cfg.ErrorCode = "E_DECLINED"
	}
	if cfg.ErrorMessage == "" {
		cfg.ErrorMessage = "The vault declined the request"
	}
	return &Frame{cfg: cfg, logger: log.WithComponent("frame-sim")}
}

// Token is the deterministic opaque token the simulator issues for pan in session.
func (f *Frame) Token(sessionID, pan string) string {
	sum := sha256.Sum256([]byte(f.cfg.TokenSalt + "|" + sessionID + "|" + normalizePAN(pan)))
	return "tok_" + hex.EncodeToString(sum[:12])
}

type session struct {
	f      *Frame
	conn   transport.Conn
	id     string
	trace  string
	logger zerolog.Logger
	done   bool
}

// Serve runs one frame session until the host closes the connection or ctx ends.
func (f *Frame) Serve(ctx context.Context, conn transport.Conn, loadURL *url.URL) error {
	q := loadURL.Query()
	s := &session{
		f:     f,
		conn:  conn,
		id:    q.Get("sessionID"),
		trace: q.Get("vault_trace_uid"),
	}
	s.logger = f.logger.With().
		Str(log.FieldSessionID, s.id).
		Str(log.FieldTraceID, s.trace).
		Str(log.FieldURL, loadURL.Path).
		Logger()
	s.logger.Info().Str(log.FieldEvent, "frame.loaded").Msg("simulated frame loaded")

	if missing := missingParams(loadURL); len(missing) > 0 {
		s.finish(ctx, channel.ValidationErrors{Errors: missing})
	} else if f.cfg.Fail == FailFieldErrors {
		s.finish(ctx, channel.ValidationErrors{Errors: []string{"card: rejected by scripted field error"}})
	} else if strings.HasSuffix(loadURL.Path, PathDetokenize) {
		s.detokenize(ctx, q.Get("auvToken"))
	}

	var expire <-chan time.Time
	if f.cfg.SessionLifetime > 0 {
		t := time.NewTimer(f.cfg.SessionLifetime)
		defer t.Stop()
		expire = t.C
	}

	cardTypes := q.Get("cardTypes")
	for {
		select {
		case env, ok := <-conn.Receive():
			if !ok {
				s.logger.Debug().Msg("host unloaded simulated frame")
				return nil
			}
			if s.done {
				continue
			}
			s.handle(ctx, env.Payload, cardTypes)
		case <-expire:
			if !s.done {
				s.finish(ctx, channel.SessionExpired{})
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func missingParams(u *url.URL) []string {
	q := u.Query()
	var missing []string
	if q.Get("sessionID") == "" {
		missing = append(missing, "sessionID: required")
	}
	if q.Get("vault_trace_uid") == "" {
		missing = append(missing, "vault_trace_uid: required")
	}
	if strings.HasSuffix(u.Path, PathDetokenize) && q.Get("auvToken") == "" {
		missing = append(missing, "auvToken: required")
	}
	return missing
}

func (s *session) handle(ctx context.Context, payload []byte, cardTypes string) {
	msg, err := channel.Decode(payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("simulated frame ignored malformed message")
		return
	}
	switch m := msg.(type) {
	case channel.ValidateCard:
		if d := s.f.cfg.ValidationDelay; d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return
			}
		}
		pan := s.f.cfg.CardNumber
		valid := Luhn(pan) && allowedType(CardType(pan), cardTypes)
		s.logger.Debug().
			Str(log.FieldRequestID, m.RequestID).
			Str("card", maskPAN(pan)).
			Bool("valid", valid).
			Msg("simulated frame answered validation")
		s.send(ctx, channel.CardValidity{RequestID: m.RequestID, Valid: valid})
	case channel.Tokenize:
		switch s.f.cfg.Fail {
		case FailError:
			s.finish(ctx, channel.RemoteError{Code: s.f.cfg.ErrorCode, Message: s.f.cfg.ErrorMessage})
		case FailExpire:
			s.finish(ctx, channel.SessionExpired{})
		default:
			pan := s.f.cfg.CardNumber
			s.finish(ctx, channel.Tokenized{Token: s.f.Token(s.id, pan), CardType: CardType(pan)})
		}
	default:
		s.logger.Warn().Str(log.FieldTag, string(msg.Tag())).Msg("simulated frame ignored unexpected message")
	}
}

func (s *session) detokenize(ctx context.Context, token string) {
	switch s.f.cfg.Fail {
	case FailError:
		s.finish(ctx, channel.RemoteError{Code: s.f.cfg.ErrorCode, Message: s.f.cfg.ErrorMessage})
	case FailExpire:
		s.finish(ctx, channel.SessionExpired{})
	default:
		s.logger.Info().Str("token", token).Msg("simulated frame displayed detokenized credential")
		s.send(ctx, channel.Decrypted{})
	}
}

// finish sends a terminal message; the frame then idles until the host unloads it.
func (s *session) finish(ctx context.Context, m channel.Message) {
	s.send(ctx, m)
	s.done = true
}

func (s *session) send(ctx context.Context, m channel.Message) {
	payload, err := channel.Encode(m)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode frame message")
		return
	}
	if err := s.conn.Send(ctx, payload); err != nil {
		s.logger.Debug().Err(err).Str(log.FieldTag, string(m.Tag())).Msg("frame message not delivered")
		return
	}
	s.logger.Debug().Str(log.FieldTag, string(m.Tag())).Msg("frame message sent")
}
