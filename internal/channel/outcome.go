// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

// OutcomeKind classifies the effect of one inbound message.
type OutcomeKind int

const (
	// OutcomeDropped means the message was ignored; Err says why.
	OutcomeDropped OutcomeKind = iota
	// OutcomeInvalidCard means the frame rejected the credential; the context stays loaded.
	OutcomeInvalidCard
	// OutcomeTokenizing means a matching affirmative validation triggered tokenize.
	OutcomeTokenizing
	// OutcomeDecrypted is the non-terminal detokenize notice.
	OutcomeDecrypted
	OutcomeSucceeded
	OutcomeFailed
	OutcomeExpired
	OutcomeFieldErrors
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDropped:
		return "dropped"
	case OutcomeInvalidCard:
		return "invalid_card"
	case OutcomeTokenizing:
		return "tokenizing"
	case OutcomeDecrypted:
		return "decrypted"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeExpired:
		return "expired"
	case OutcomeFieldErrors:
		return "field_errors"
	default:
		return "unknown"
	}
}

// Terminal reports whether the context must be unloaded.
func (k OutcomeKind) Terminal() bool {
	switch k {
	case OutcomeSucceeded, OutcomeFailed, OutcomeExpired, OutcomeFieldErrors:
		return true
	default:
		return false
	}
}

// Outcome is the result of handling one inbound message.
type Outcome struct {
	Kind       OutcomeKind
	Generation uint64
	TraceID    string

	// Set on OutcomeSucceeded.
	Token    string
	CardType string

	// *Error for terminal failures; a drop reason for OutcomeDropped.
	Err error
}

// Terminal reports whether the context must be unloaded.
func (o Outcome) Terminal() bool { return o.Kind.Terminal() }
