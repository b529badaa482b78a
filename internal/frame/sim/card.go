// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"strconv"
	"strings"
)

// Card types reported in auv_ok.
const (
	CardVisa       = "visa"
	CardMastercard = "mastercard"
	CardAmex       = "amex"
	CardDiscover   = "discover"
)

// normalizePAN strips spaces and dashes. It returns "" if anything else is not a digit.
func normalizePAN(pan string) string {
	var b strings.Builder
	for _, r := range pan {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return ""
		}
	}
	return b.String()
}

// Luhn reports whether pan passes the mod-10 check.
func Luhn(pan string) bool {
	digits := normalizePAN(pan)
	if len(digits) < 12 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// CardType detects the brand from the issuer prefix, or "".
func CardType(pan string) string {
	d := normalizePAN(pan)
	prefix := func(n int) int {
		if len(d) < n {
			return -1
		}
		v, _ := strconv.Atoi(d[:n])
		return v
	}
	switch {
	case strings.HasPrefix(d, "4"):
		return CardVisa
	case prefix(2) >= 51 && prefix(2) <= 55, prefix(4) >= 2221 && prefix(4) <= 2720:
		return CardMastercard
	case prefix(2) == 34 || prefix(2) == 37:
		return CardAmex
	case prefix(4) == 6011, prefix(2) == 65, prefix(3) >= 644 && prefix(3) <= 649:
		return CardDiscover
	default:
		return ""
	}
}

// allowedType reports whether cardType is in the comma-separated allow list.
// An empty list allows every detected type.
func allowedType(cardType, list string) bool {
	if strings.TrimSpace(list) == "" {
		return cardType != ""
	}
	for _, t := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(t), cardType) {
			return true
		}
	}
	return false
}

func maskPAN(pan string) string {
	d := normalizePAN(pan)
	if len(d) < 4 {
		return strings.Repeat("*", len(d))
	}
	return strings.Repeat("*", len(d)-4) + d[len(d)-4:]
}
