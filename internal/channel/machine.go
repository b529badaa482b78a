// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/vaultembed/internal/log"
	"github.com/ManuGH/vaultembed/internal/metrics"
)

// StaleWarnInterval bounds how often stale validation responses are logged.
const StaleWarnInterval = 10 * time.Second

// Sender delivers an encoded message to the attached frame.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Inbound is one message received from a frame, stamped by the transport.
type Inbound struct {
	Generation uint64
	Origin     string
	Payload    []byte
}

// Machine is the host-side channel state machine for one embedding controller.
// All state, including the outstanding request id, is guarded by mu and only
// mutated by the machine's own transitions. Outbound sends run outside mu.
type Machine struct {
	mu          sync.Mutex
	state       State
	gen         uint64
	origin      string
	traceID     string
	outstanding string
	sender      Sender

	logger    zerolog.Logger
	staleWarn rate.Sometimes
	requestID func() string
}

// Option customises a Machine.
type Option func(*Machine)

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithRequestIDSource fixes the validation request id source.
func WithRequestIDSource(f func() string) Option {
	return func(m *Machine) { m.requestID = f }
}

// NewMachine returns a machine awaiting its first session.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		state:     StateAwaitingSession,
		logger:    log.WithComponent("channel"),
		staleWarn: rate.Sometimes{Interval: StaleWarnInterval},
		requestID: NewRequestID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Outstanding returns the outstanding validation request id, if any.
func (m *Machine) Outstanding() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outstanding
}

// Attach binds the machine to a freshly loaded context. Messages are only
// accepted from generation gen and, when origin is non-empty, from origin.
func (m *Machine) Attach(gen uint64, origin, traceID string, s Sender) error {
	if s == nil {
		return fmt.Errorf("attach generation %d: nil sender", gen)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Loaded() {
		return fmt.Errorf("attach generation %d: generation %d still attached", gen, m.gen)
	}
	if gen <= m.gen {
		return fmt.Errorf("attach generation %d: %w (live %d)", gen, ErrStaleGeneration, m.gen)
	}
	if err := m.transition(EvAttached); err != nil {
		return err
	}
	m.gen = gen
	m.origin = origin
	m.traceID = traceID
	m.sender = s
	m.outstanding = ""
	return nil
}

// Detach forgets the attached context. Later messages for it are dropped.
func (m *Machine) Detach(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Loaded() {
		return
	}
	_ = m.transition(EvDetached)
	m.logger.Debug().
		Str(log.FieldTraceID, m.traceID).
		Uint64(log.FieldGeneration, m.gen).
		Str(log.FieldReason, reason).
		Msg("channel detached")
	m.clear()
}

// RequestValidation sends isCreditCardValid with a fresh request id, which
// replaces any outstanding one. The send happens outside mu so Detach never
// waits on a frame that stopped reading.
func (m *Machine) RequestValidation(ctx context.Context) (string, error) {
	m.mu.Lock()
	switch m.state {
	case StateContextLoaded, StateAwaitingValidation:
	case StateTokenizing:
		m.mu.Unlock()
		return "", ErrOperationInFlight
	default:
		m.mu.Unlock()
		return "", ErrNotAttached
	}

	id := m.requestID()
	prevState, prevID := m.state, m.outstanding
	if err := m.transition(EvValidationRequested); err != nil {
		m.mu.Unlock()
		return "", err
	}
	m.outstanding = id
	gen, traceID, sender := m.gen, m.traceID, m.sender
	m.mu.Unlock()

	if err := send(ctx, sender, ValidateCard{RequestID: id}); err != nil {
		m.mu.Lock()
		// Roll back only if nothing superseded this request meanwhile.
		if m.gen == gen && m.state == StateAwaitingValidation && m.outstanding == id {
			m.state, m.outstanding = prevState, prevID
		}
		m.mu.Unlock()
		return "", err
	}
	m.logger.Debug().
		Str(log.FieldTraceID, traceID).
		Str(log.FieldRequestID, id).
		Msg("validation requested")
	return id, nil
}

// pendingTokenize is the tokenize send owed after an accepted validity answer.
type pendingTokenize struct {
	gen    uint64
	sender Sender
}

// Handle applies one inbound message and reports its effect.
func (m *Machine) Handle(ctx context.Context, in Inbound) Outcome {
	m.mu.Lock()
	out, pending := m.handleLocked(in)
	m.mu.Unlock()

	if pending == nil {
		return out
	}
	return m.tokenize(ctx, out, pending)
}

// handleLocked applies in under mu. A non-nil pendingTokenize must be sent by the caller after unlocking.
func (m *Machine) handleLocked(in Inbound) (Outcome, *pendingTokenize) {
	if !m.state.Loaded() || in.Generation != m.gen {
		return m.drop(in, "stale_generation", ErrStaleGeneration), nil
	}
	if m.origin != "" && in.Origin != m.origin {
		m.logger.Warn().
			Str(log.FieldTraceID, m.traceID).
			Str(log.FieldOrigin, in.Origin).
			Str("expected_origin", m.origin).
			Msg("dropped channel message from unexpected origin")
		return m.drop(in, "origin", ErrOriginMismatch), nil
	}

	msg, err := Decode(in.Payload)
	if err != nil {
		m.logger.Warn().Err(err).Str(log.FieldTraceID, m.traceID).Msg("dropped malformed channel message")
		return m.drop(in, "malformed", err), nil
	}
	metrics.RecordChannelMessage("inbound", string(msg.Tag()))

	switch v := msg.(type) {
	case CardValidity:
		return m.onValidity(v)
	case Tokenized:
		if err := m.transition(EvSucceeded); err != nil {
			return m.unexpected(msg), nil
		}
		out := m.outcome(OutcomeSucceeded, nil)
		out.Token, out.CardType = v.Token, v.CardType
		return m.finish(out), nil
	case RemoteError:
		if err := m.transition(EvFailed); err != nil {
			return m.unexpected(msg), nil
		}
		return m.finish(m.outcome(OutcomeFailed, &Error{Kind: ErrRemote, TraceID: m.traceID, Code: v.Code, Message: v.Message})), nil
	case SessionExpired:
		if err := m.transition(EvExpired); err != nil {
			return m.unexpected(msg), nil
		}
		return m.finish(m.outcome(OutcomeExpired, &Error{Kind: ErrSessionExpired, TraceID: m.traceID})), nil
	case ValidationErrors:
		if err := m.transition(EvFieldErrors); err != nil {
			return m.unexpected(msg), nil
		}
		return m.finish(m.outcome(OutcomeFieldErrors, &Error{Kind: ErrRemote, TraceID: m.traceID, Fields: v.Errors})), nil
	case Decrypted:
		if err := m.transition(EvDecrypted); err != nil {
			return m.unexpected(msg), nil
		}
		return m.outcome(OutcomeDecrypted, nil), nil
	case ValidateCard, Tokenize:
		return m.unexpected(msg), nil
	default:
		return m.unexpected(msg), nil
	}
}

func (m *Machine) onValidity(v CardValidity) (Outcome, *pendingTokenize) {
	if m.state != StateAwaitingValidation || v.RequestID != m.outstanding {
		metrics.RecordChannelDrop("stale_response")
		m.staleWarn.Do(func() {
			m.logger.Warn().
				Str(log.FieldTraceID, m.traceID).
				Str(log.FieldRequestID, v.RequestID).
				Str("outstanding", m.outstanding).
				Str(log.FieldEvent, "channel.stale_response").
				Msg("ignored validation response that does not match the outstanding request")
		})
		return m.outcome(OutcomeDropped, ErrStaleResponse), nil
	}
	m.outstanding = ""

	if !v.Valid {
		_ = m.transition(EvValidityRejected)
		return m.outcome(OutcomeInvalidCard, nil), nil
	}

	// Entering Tokenizing under mu makes any later cc_valid stale, so tokenize goes out once.
	_ = m.transition(EvValidityAccepted)
	return m.outcome(OutcomeTokenizing, nil), &pendingTokenize{gen: m.gen, sender: m.sender}
}

// tokenize sends the owed tokenize message outside mu. A failed send is
// terminal unless the context was already discarded.
func (m *Machine) tokenize(ctx context.Context, out Outcome, p *pendingTokenize) Outcome {
	err := send(ctx, p.sender, Tokenize{})
	if err == nil {
		return out
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != p.gen || m.state != StateTokenizing {
		return Outcome{Kind: OutcomeDropped, Generation: p.gen, TraceID: out.TraceID, Err: err}
	}
	_ = m.transition(EvFailed)
	return m.finish(m.outcome(OutcomeFailed, &Error{Kind: ErrTransport, TraceID: m.traceID, Err: err}))
}

func (m *Machine) outcome(kind OutcomeKind, err error) Outcome {
	return Outcome{Kind: kind, Generation: m.gen, TraceID: m.traceID, Err: err}
}

// finish records a terminal outcome and forgets the context.
func (m *Machine) finish(out Outcome) Outcome {
	metrics.RecordChannelTerminal(out.Kind.String())
	ev := m.logger.Info()
	if out.Err != nil {
		ev = m.logger.Warn().Err(out.Err)
	}
	ev.Str(log.FieldTraceID, out.TraceID).
		Uint64(log.FieldGeneration, out.Generation).
		Str(log.FieldEvent, "channel."+out.Kind.String()).
		Msg("channel reached terminal outcome")
	m.clear()
	return out
}

func (m *Machine) clear() {
	m.sender = nil
	m.outstanding = ""
}

func (m *Machine) unexpected(msg Message) Outcome {
	m.logger.Warn().
		Str(log.FieldTraceID, m.traceID).
		Str(log.FieldTag, string(msg.Tag())).
		Str("state", string(m.state)).
		Msg("dropped channel message not expected in current state")
	metrics.RecordChannelDrop("unexpected")
	return m.outcome(OutcomeDropped, fmt.Errorf("%w: %s in %s", ErrUnexpectedMessage, msg.Tag(), m.state))
}

func (m *Machine) drop(in Inbound, reason string, err error) Outcome {
	metrics.RecordChannelDrop(reason)
	return Outcome{Kind: OutcomeDropped, Generation: in.Generation, TraceID: m.traceID, Err: err}
}

// send encodes and delivers msg. It must not be called with mu held.
func send(ctx context.Context, s Sender, msg Message) error {
	if s == nil {
		return ErrNotAttached
	}
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := s.Send(ctx, payload); err != nil {
		return fmt.Errorf("send %s: %w", msg.Tag(), errors.Join(ErrTransport, err))
	}
	metrics.RecordChannelMessage("outbound", string(msg.Tag()))
	return nil
}

// transition applies ev via the transition table. Caller must hold mu.
func (m *Machine) transition(ev Event) error {
	tr, ok := TransitionFor(m.state, ev)
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrUnexpectedMessage, ev, m.state)
	}
	if tr.To != m.state {
		m.logger.Debug().
			Str(log.FieldOldState, string(m.state)).
			Str(log.FieldNewState, string(tr.To)).
			Str(log.FieldEvent, string(ev)).
			Uint64(log.FieldGeneration, m.gen).
			Msg("channel transition")
	}
	m.state = tr.To
	return nil
}
