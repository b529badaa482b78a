// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package vault

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Secret is the merchant's shared signing secret. It formats as a fixed mask
// so it cannot leak through logs or config dumps.
type Secret string

const redacted = "[REDACTED]"

func (Secret) String() string   { return redacted }
func (Secret) GoString() string { return redacted }

// MarshalText masks the secret in JSON and YAML output.
func (Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Credentials are the merchant inputs to one negotiation.
type Credentials struct {
	ConfigurationID       string    `validate:"required"`
	MerchantTransactionID string    `validate:"required"`
	Segment               string    `validate:"required"`
	Retention             Retention `validate:"required"`
	Secret                Secret    `validate:"required"`
}

// Validate reports missing fields before anything is signed or sent.
func (c Credentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("%w: missing %v", ErrInvalidRequest, fields)
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
