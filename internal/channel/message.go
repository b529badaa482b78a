// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"strings"

	"github.com/google/uuid"
)

// Tag is the wire discriminator of a channel message.
type Tag string

const (
	TagValidateCard     Tag = "isCreditCardValid" // host -> frame
	TagTokenize         Tag = "tokenize"          // host -> frame
	TagCardValidity     Tag = "cc_valid"          // frame -> host
	TagTokenized        Tag = "auv_ok"            // frame -> host, terminal
	TagRemoteError      Tag = "auv_error"         // frame -> host, terminal
	TagSessionExpired   Tag = "auv_timeout"       // frame -> host, terminal
	TagValidationErrors Tag = "validation_errors" // frame -> host, terminal
	TagDecrypted        Tag = "auv_decrypted"     // frame -> host
)

// FromHost reports whether the tag is sent by the host.
func (t Tag) FromHost() bool {
	return t == TagValidateCard || t == TagTokenize
}

// Message is one of the variants declared in this package.
type Message interface {
	Tag() Tag
	sealed()
}

// ValidateCard asks the frame whether the credential it holds is valid.
type ValidateCard struct {
	RequestID string
}

// CardValidity answers a ValidateCard.
type CardValidity struct {
	RequestID string
	Valid     bool
}

// Tokenize asks the frame to submit the credential to the vault.
type Tokenize struct{}

// Tokenized reports a successful tokenization.
type Tokenized struct {
	Token    string
	CardType string
}

// RemoteError reports a vault-side failure.
type RemoteError struct {
	Code    string
	Message string
}

// SessionExpired reports that the vault session outlived its lifetime.
type SessionExpired struct{}

// ValidationErrors carries field-level errors from the detokenize frame.
type ValidationErrors struct {
	Errors []string
}

// Decrypted notes that the detokenize frame displayed the credential.
type Decrypted struct{}

func (ValidateCard) Tag() Tag     { return TagValidateCard }
func (CardValidity) Tag() Tag     { return TagCardValidity }
func (Tokenize) Tag() Tag         { return TagTokenize }
func (Tokenized) Tag() Tag        { return TagTokenized }
func (RemoteError) Tag() Tag      { return TagRemoteError }
func (SessionExpired) Tag() Tag   { return TagSessionExpired }
func (ValidationErrors) Tag() Tag { return TagValidationErrors }
func (Decrypted) Tag() Tag        { return TagDecrypted }

func (ValidateCard) sealed()     {}
func (CardValidity) sealed()     {}
func (Tokenize) sealed()         {}
func (Tokenized) sealed()        {}
func (RemoteError) sealed()      {}
func (SessionExpired) sealed()   {}
func (ValidationErrors) sealed() {}
func (Decrypted) sealed()        {}

const requestIDPrefix = string(TagValidateCard) + ":"

// NewRequestID returns a fresh validation request id.
func NewRequestID() string {
	return requestIDPrefix + uuid.NewString()
}

// IsRequestID reports whether s has the shape produced by NewRequestID.
func IsRequestID(s string) bool {
	return strings.HasPrefix(s, requestIDPrefix) && len(s) > len(requestIDPrefix)
}
