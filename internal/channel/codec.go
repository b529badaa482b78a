// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type wireMessage struct {
	Tag  Tag             `json:"tag"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wireValidity struct {
	RequestID string   `json:"requestId"`
	IsValid   flexBool `json:"isValid"`
}

type wireTokenized struct {
	Token    string `json:"token"`
	CardType string `json:"cardType"`
}

type wireRemoteError struct {
	Code    flexString `json:"code"`
	Message string     `json:"message"`
}

// Encode renders m as {tag, data}.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	var data any
	switch v := m.(type) {
	case ValidateCard:
		// The frame expects the request id as a bare string.
		data = v.RequestID
	case CardValidity:
		data = wireValidity{RequestID: v.RequestID, IsValid: flexBool(v.Valid)}
	case Tokenized:
		data = wireTokenized{Token: v.Token, CardType: v.CardType}
	case RemoteError:
		data = wireRemoteError{Code: flexString(v.Code), Message: v.Message}
	case ValidationErrors:
		errs := v.Errors
		if errs == nil {
			errs = []string{}
		}
		data = errs
	case Tokenize, SessionExpired, Decrypted:
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", ErrMalformed, m)
	}

	out := wireMessage{Tag: m.Tag()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", m.Tag(), err)
		}
		out.Data = raw
	}
	return json.Marshal(out)
}

// Decode parses a {tag, data} payload into its typed variant.
// Unknown tags and payloads that do not match their tag wrap ErrMalformed.
func Decode(payload []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	data := bytes.TrimSpace(w.Data)

	switch w.Tag {
	case TagValidateCard:
		id, err := decodeRequestID(data)
		if err != nil {
			return nil, err
		}
		return ValidateCard{RequestID: id}, nil
	case TagCardValidity:
		var v wireValidity
		if err := decodeData(w.Tag, data, &v); err != nil {
			return nil, err
		}
		if v.RequestID == "" {
			return nil, fmt.Errorf("%w: %s without requestId", ErrMalformed, w.Tag)
		}
		return CardValidity{RequestID: v.RequestID, Valid: bool(v.IsValid)}, nil
	case TagTokenize:
		return Tokenize{}, nil
	case TagTokenized:
		var v wireTokenized
		if err := decodeData(w.Tag, data, &v); err != nil {
			return nil, err
		}
		if v.Token == "" {
			return nil, fmt.Errorf("%w: %s without token", ErrMalformed, w.Tag)
		}
		return Tokenized{Token: v.Token, CardType: v.CardType}, nil
	case TagRemoteError:
		var v wireRemoteError
		if len(data) > 0 {
			if err := decodeData(w.Tag, data, &v); err != nil {
				return nil, err
			}
		}
		return RemoteError{Code: string(v.Code), Message: v.Message}, nil
	case TagSessionExpired:
		return SessionExpired{}, nil
	case TagValidationErrors:
		var errs []string
		if len(data) > 0 {
			if err := decodeData(w.Tag, data, &errs); err != nil {
				return nil, err
			}
		}
		return ValidationErrors{Errors: errs}, nil
	case TagDecrypted:
		return Decrypted{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing tag", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformed, w.Tag)
	}
}

func decodeData(tag Tag, data []byte, out any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: %s without data", ErrMalformed, tag)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	return nil
}

// decodeRequestID accepts both "id" and {"requestId": "id"}.
func decodeRequestID(data []byte) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		var obj struct {
			RequestID string `json:"requestId"`
		}
		if err := decodeData(TagValidateCard, data, &obj); err != nil {
			return "", err
		}
		id = obj.RequestID
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s without requestId", ErrMalformed, TagValidateCard)
	}
	return id, nil
}

// flexBool accepts true/false, 0/1 and their quoted forms.
type flexBool bool

func (b flexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.Trim(bytes.TrimSpace(data), `"`)) {
	case "true", "1":
		*b = true
	case "false", "0", "null", "":
		*b = false
	default:
		return fmt.Errorf("unexpected boolean %s", data)
	}
	return nil
}

// flexString keeps numeric error codes as their decimal text.
type flexString string

func (s flexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(num.String(), 64); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}
