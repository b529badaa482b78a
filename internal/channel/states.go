// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

// State is the host-side channel state.
type State string

const (
	StateAwaitingSession    State = "awaiting_session"
	StateContextLoaded      State = "context_loaded"
	StateAwaitingValidation State = "awaiting_validation"
	StateTokenizing         State = "tokenizing"
	StateIdle               State = "idle"
)

// Event drives a state change.
type Event string

const (
	EvAttached            Event = "attached"
	EvValidationRequested Event = "validation_requested"
	EvValidityRejected    Event = "validity_rejected"
	EvValidityAccepted    Event = "validity_accepted"
	EvDecrypted           Event = "decrypted"
	EvSucceeded           Event = "succeeded"
	EvFailed              Event = "failed"
	EvExpired             Event = "expired"
	EvFieldErrors         Event = "field_errors"
	EvDetached            Event = "detached"
)

// Transition is a single allowed edge.
type Transition struct {
	From  State
	To    State
	Event Event
}

var transitionsTable = []Transition{
	// Load
	{From: StateAwaitingSession, To: StateContextLoaded, Event: EvAttached},
	{From: StateIdle, To: StateContextLoaded, Event: EvAttached},

	// Validation round trip; a re-submission replaces the outstanding request.
	{From: StateContextLoaded, To: StateAwaitingValidation, Event: EvValidationRequested},
	{From: StateAwaitingValidation, To: StateAwaitingValidation, Event: EvValidationRequested},
	{From: StateAwaitingValidation, To: StateContextLoaded, Event: EvValidityRejected},
	{From: StateAwaitingValidation, To: StateTokenizing, Event: EvValidityAccepted},

	// Detokenize notice (non-terminal)
	{From: StateContextLoaded, To: StateContextLoaded, Event: EvDecrypted},

	// Terminal success
	{From: StateTokenizing, To: StateIdle, Event: EvSucceeded},

	// Terminal failures are accepted in every loaded state.
	{From: StateContextLoaded, To: StateIdle, Event: EvFailed},
	{From: StateAwaitingValidation, To: StateIdle, Event: EvFailed},
	{From: StateTokenizing, To: StateIdle, Event: EvFailed},

	{From: StateContextLoaded, To: StateIdle, Event: EvExpired},
	{From: StateAwaitingValidation, To: StateIdle, Event: EvExpired},
	{From: StateTokenizing, To: StateIdle, Event: EvExpired},

	{From: StateContextLoaded, To: StateIdle, Event: EvFieldErrors},
	{From: StateAwaitingValidation, To: StateIdle, Event: EvFieldErrors},
	{From: StateTokenizing, To: StateIdle, Event: EvFieldErrors},

	// Host-initiated unload
	{From: StateContextLoaded, To: StateIdle, Event: EvDetached},
	{From: StateAwaitingValidation, To: StateIdle, Event: EvDetached},
	{From: StateTokenizing, To: StateIdle, Event: EvDetached},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from State, ev Event) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Loaded reports whether a context is attached in s.
func (s State) Loaded() bool {
	switch s {
	case StateContextLoaded, StateAwaitingValidation, StateTokenizing:
		return true
	default:
		return false
	}
}
