// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package vault

import (
	"time"

	"github.com/google/uuid"
)

// TraceID correlates one negotiation and the context it loads with vault-side logs.
// It is UUID-shaped for readability; uniqueness is best effort.
type TraceID string

// NewTraceID returns a fresh random trace id.
func NewTraceID() TraceID {
	return TraceID(uuid.NewString())
}

func (t TraceID) String() string { return string(t) }

// Session is a vault-issued handle. It is never persisted.
type Session struct {
	ID       string
	TraceID  TraceID
	IssuedAt time.Time
}

// Valid reports whether the handle carries a session id.
func (s Session) Valid() bool { return s.ID != "" }
