// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package embed

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ManuGH/vaultembed/internal/vault"
)

// Flow selects which frame is embedded.
type Flow string

const (
	FlowTokenize   Flow = "tokenize"
	FlowDetokenize Flow = "detokenize"
)

// Load url query parameters.
const (
	ParamSessionID = "sessionID"
	ParamTraceUID  = "vault_trace_uid"
	ParamCardTypes = "cardTypes"
	ParamAuvToken  = "auvToken"
)

// Target is what to load for one session.
type Target struct {
	Flow Flow
	// AuvToken is the opaque token passed through to the detokenize frame.
	AuvToken string
}

// ParseFlow maps a CLI or config name to a Flow.
func ParseFlow(s string) (Flow, error) {
	switch Flow(strings.ToLower(strings.TrimSpace(s))) {
	case FlowTokenize:
		return FlowTokenize, nil
	case FlowDetokenize:
		return FlowDetokenize, nil
	default:
		return "", fmt.Errorf("unknown flow %q", s)
	}
}

// Retention is the retention the vault session is requested with for f.
func (f Flow) Retention(configured vault.Retention) vault.Retention {
	if f == FlowDetokenize {
		return vault.RetentionBigYear
	}
	if configured == "" {
		return vault.RetentionForever
	}
	return configured
}

// LoadURL builds the frame address for sess. These parameters are the only
// data crossing the load boundary outside the message channel.
func (c Config) LoadURL(sess vault.Session, t Target) (string, error) {
	var base string
	switch t.Flow {
	case FlowTokenize:
		base = c.TokenizeURL
	case FlowDetokenize:
		base = c.DetokenizeURL
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, t.Flow)
	}
	if base == "" {
		return "", fmt.Errorf("%w: no frame url for %s", ErrUnknownFlow, t.Flow)
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("frame url: %w", err)
	}
	q := u.Query()
	q.Set(ParamSessionID, sess.ID)
	q.Set(ParamTraceUID, sess.TraceID.String())
	switch t.Flow {
	case FlowTokenize:
		if len(c.CardTypes) > 0 {
			q.Set(ParamCardTypes, strings.Join(c.CardTypes, ","))
		}
	case FlowDetokenize:
		if t.AuvToken == "" {
			return "", fmt.Errorf("%w: detokenize requires a token", ErrInvalidTarget)
		}
		q.Set(ParamAuvToken, t.AuvToken)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
