// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package vault

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrTransport = errors.New("vault: transport failure")
	ErrTimeout   = errors.New("vault: request timed out")
	ErrRejected  = errors.New("vault: session request rejected")

	// ErrInvalidRequest is returned before any network activity.
	ErrInvalidRequest = errors.New("vault: invalid session request")

	// ErrMalformedResponse is the cause attached to a Transport error when the
	// vault answered with something that is not a session response.
	ErrMalformedResponse = errors.New("malformed response")
)

// NegotiationError wraps a sentinel kind with the context needed to correlate
// the failure with vault-side logs.
type NegotiationError struct {
	Kind    error // ErrTransport, ErrTimeout or ErrRejected
	TraceID TraceID
	AjaxID  int
	Status  int
	Remote  string // server-supplied error payload, verbatim
	Err     error  // lower-level cause
}

func (e *NegotiationError) Error() string {
	msg := fmt.Sprintf("%s: %v", MethodGetSession, e.Kind)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Remote != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Remote)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.TraceID != "" {
		msg = fmt.Sprintf("%s [trace %s]", msg, e.TraceID)
	}
	return msg
}

func (e *NegotiationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// outcome maps a negotiation result to its metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transport"
	}
}
