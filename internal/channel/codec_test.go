// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWireShapes(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"validate card uses bare string", ValidateCard{RequestID: "isCreditCardValid:a"}, `{"tag":"isCreditCardValid","data":"isCreditCardValid:a"}`},
		{"tokenize has no data", Tokenize{}, `{"tag":"tokenize"}`},
		{"validity", CardValidity{RequestID: "r", Valid: true}, `{"tag":"cc_valid","data":{"requestId":"r","isValid":true}}`},
		{"tokenized", Tokenized{Token: "tok", CardType: "visa"}, `{"tag":"auv_ok","data":{"token":"tok","cardType":"visa"}}`},
		{"remote error", RemoteError{Code: "42", Message: "boom"}, `{"tag":"auv_error","data":{"code":"42","message":"boom"}}`},
		{"expired", SessionExpired{}, `{"tag":"auv_timeout"}`},
		{"field errors", ValidationErrors{Errors: []string{"token: unknown"}}, `{"tag":"validation_errors","data":["token: unknown"]}`},
		{"decrypted", Decrypted{}, `{"tag":"auv_decrypted"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))

			back, err := Decode(got)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, back)
		})
	}
}

func TestDecodeAcceptsSenderVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Message
	}{
		{"validate card object form", `{"tag":"isCreditCardValid","data":{"requestId":"x"}}`, ValidateCard{RequestID: "x"}},
		{"validity as integer", `{"tag":"cc_valid","data":{"requestId":"x","isValid":1}}`, CardValidity{RequestID: "x", Valid: true}},
		{"validity as string", `{"tag":"cc_valid","data":{"requestId":"x","isValid":"false"}}`, CardValidity{RequestID: "x"}},
		{"numeric error code", `{"tag":"auv_error","data":{"code":500,"message":"down"}}`, RemoteError{Code: "500", Message: "down"}},
		{"error without data", `{"tag":"auv_error"}`, RemoteError{}},
		{"timeout with null data", `{"tag":"auv_timeout","data":null}`, SessionExpired{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":           `tag=auv_ok`,
		"missing tag":        `{"data":{}}`,
		"unknown tag":        `{"tag":"auv_maybe"}`,
		"validity no id":     `{"tag":"cc_valid","data":{"isValid":true}}`,
		"validity no data":   `{"tag":"cc_valid"}`,
		"validity bad flag":  `{"tag":"cc_valid","data":{"requestId":"x","isValid":"yes"}}`,
		"ok without token":   `{"tag":"auv_ok","data":{"cardType":"visa"}}`,
		"validate empty":     `{"tag":"isCreditCardValid","data":""}`,
		"field errors shape": `{"tag":"validation_errors","data":{"field":"x"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEncodeNilMessage(t *testing.T) {
	_, err := Encode(nil)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRequestIDShape(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	assert.NotEqual(t, a, b)
	assert.True(t, IsRequestID(a))
	assert.False(t, IsRequestID("isCreditCardValid:"))
	assert.False(t, IsRequestID("other"))
}

func TestTagDirection(t *testing.T) {
	assert.True(t, TagValidateCard.FromHost())
	assert.True(t, TagTokenize.FromHost())
	assert.False(t, TagCardValidity.FromHost())
	assert.False(t, TagSessionExpired.FromHost())
}
