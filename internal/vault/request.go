// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

// MethodGetSession is the only JSON-RPC method this package issues.
const MethodGetSession = "get_session"

// MaxAjaxID bounds the request correlation id: ids are drawn from (0, MaxAjaxID].
const MaxAjaxID = 1_000_000

// Retention selects how long the vault keeps data tokenized in the session.
type Retention string

const (
	RetentionForever Retention = "forever"
	RetentionBigYear Retention = "big-year"
	RetentionYear    Retention = "year"
	RetentionMonth   Retention = "month"
	RetentionDay     Retention = "day"
)

// SessionRequest is one get_session call. It is immutable once built and
// lives for a single negotiation attempt.
type SessionRequest struct {
	AjaxID                int
	Method                string
	UTCTimestamp          string
	ConfigurationID       string
	MerchantTransactionID string
	Retention             Retention
	Segment               string
}

// wireParams fixes the params field names and order on the wire.
type wireParams struct {
	UTCTimestamp          string    `json:"utcTimestamp"`
	ConfigurationID       string    `json:"configurationId"`
	MerchantTransactionID string    `json:"mtid"`
	Retention             Retention `json:"retention"`
	Segment               string    `json:"segment"`
}

type wireRequest struct {
	ID     int          `json:"id"`
	Method string       `json:"method"`
	Params []wireParams `json:"params"`
}

// NewSessionRequest builds a request for creds stamped with now (whole UTC seconds).
func NewSessionRequest(ajaxID int, now time.Time, creds Credentials) SessionRequest {
	return SessionRequest{
		AjaxID:                ajaxID,
		Method:                MethodGetSession,
		UTCTimestamp:          strconv.FormatInt(now.UTC().Unix(), 10),
		ConfigurationID:       creds.ConfigurationID,
		MerchantTransactionID: creds.MerchantTransactionID,
		Retention:             creds.Retention,
		Segment:               creds.Segment,
	}
}

// RandomAjaxID returns a uniformly random id in (0, MaxAjaxID].
// It is debugging noise, not a security token.
func RandomAjaxID() int {
	return rand.IntN(MaxAjaxID) + 1
}

func (r SessionRequest) wire() wireRequest {
	return wireRequest{
		ID:     r.AjaxID,
		Method: r.Method,
		Params: []wireParams{{
			UTCTimestamp:          r.UTCTimestamp,
			ConfigurationID:       r.ConfigurationID,
			MerchantTransactionID: r.MerchantTransactionID,
			Retention:             r.Retention,
			Segment:               r.Segment,
		}},
	}
}

// Canonical returns the exact bytes that are signed and sent: compact JSON in
// construction order, without HTML escaping and without a trailing newline.
func (r SessionRequest) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r.wire()); err != nil {
		return nil, fmt.Errorf("encode session request: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalJSON encodes the request in its wire envelope.
func (r SessionRequest) MarshalJSON() ([]byte, error) {
	return r.Canonical()
}

// UnmarshalJSON decodes the wire envelope. Exactly one params object is accepted.
func (r *SessionRequest) UnmarshalJSON(data []byte) error {
	var w wireRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("decode session request: %w", err)
	}
	if len(w.Params) != 1 {
		return fmt.Errorf("decode session request: want 1 params object, got %d", len(w.Params))
	}
	p := w.Params[0]
	*r = SessionRequest{
		AjaxID:                w.ID,
		Method:                w.Method,
		UTCTimestamp:          p.UTCTimestamp,
		ConfigurationID:       p.ConfigurationID,
		MerchantTransactionID: p.MerchantTransactionID,
		Retention:             p.Retention,
		Segment:               p.Segment,
	}
	return nil
}

// ParseSessionRequest decodes a request previously produced by Canonical.
func ParseSessionRequest(data []byte) (SessionRequest, error) {
	var r SessionRequest
	if err := r.UnmarshalJSON(data); err != nil {
		return SessionRequest{}, err
	}
	return r, nil
}
