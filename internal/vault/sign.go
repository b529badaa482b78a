// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package vault

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// HexSecret is the presentation transform the signing primitive expects for
// its key: the hex encoding of the secret's raw bytes, not a hash.
func HexSecret(secret Secret) string {
	return hex.EncodeToString([]byte(secret))
}

// HMACSHA512 signs message with the hex-encoded key and returns the hex digest.
func HMACSHA512(keyHex string, message []byte) (string, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", fmt.Errorf("decode hmac key: %w", err)
	}
	mac := hmac.New(sha512.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Sign computes the X-VAULT-HMAC value for a serialized request.
func Sign(secret Secret, body []byte) (string, error) {
	return HMACSHA512(HexSecret(secret), body)
}
