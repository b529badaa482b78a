// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLuhn(t *testing.T) {
	valid := []string{"4111111111111111", "4111 1111 1111 1111", "5555-5555-5555-4444", "378282246310005", "6011111111111117"}
	for _, pan := range valid {
		assert.True(t, Luhn(pan), pan)
	}
	invalid := []string{"4111111111111112", "", "1234", "4111x11111111111", "00000000000"}
	for _, pan := range invalid {
		assert.False(t, Luhn(pan), pan)
	}
}

func TestCardType(t *testing.T) {
	tests := map[string]string{
		"4111111111111111": CardVisa,
		"5555555555554444": CardMastercard,
		"2221000000000009": CardMastercard,
		"378282246310005":  CardAmex,
		"341111111111111":  CardAmex,
		"6011111111111117": CardDiscover,
		"6500000000000002": CardDiscover,
		"6445644564456445": CardDiscover,
		"9999999999999995": "",
	}
	for pan, want := range tests {
		assert.Equal(t, want, CardType(pan), pan)
	}
}

func TestAllowedType(t *testing.T) {
	assert.True(t, allowedType(CardVisa, "visa,mastercard"))
	assert.True(t, allowedType(CardVisa, " Visa "))
	assert.False(t, allowedType(CardAmex, "visa,mastercard"))
	assert.True(t, allowedType(CardAmex, ""))
	assert.False(t, allowedType("", ""))
}

func TestMaskPAN(t *testing.T) {
	assert.Equal(t, "************1111", maskPAN("4111 1111 1111 1111"))
	assert.Equal(t, "***", maskPAN("123"))
}
