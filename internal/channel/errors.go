// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Surfaced kinds.
	ErrSessionExpired = errors.New("channel: vault session expired")
	ErrRemote         = errors.New("channel: vault reported an error")
	ErrTransport      = errors.New("channel: transport failure")

	// Dropped kinds, never surfaced to the user.
	ErrStaleResponse     = errors.New("channel: stale validation response")
	ErrStaleGeneration   = errors.New("channel: message from a discarded context")
	ErrOriginMismatch    = errors.New("channel: unexpected sender origin")
	ErrUnexpectedMessage = errors.New("channel: message not expected in current state")
	ErrMalformed         = errors.New("channel: malformed message")

	// Caller errors.
	ErrNotAttached       = errors.New("channel: no context attached")
	ErrOperationInFlight = errors.New("channel: sensitive operation in flight")
)

// Error is a terminal channel failure as surfaced to the caller.
type Error struct {
	Kind    error // ErrSessionExpired, ErrRemote or ErrTransport
	TraceID string
	Code    string
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Code != "" {
		fmt.Fprintf(&b, " (code %s)", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Fields, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.TraceID != "" {
		fmt.Fprintf(&b, " [trace %s]", e.TraceID)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
