// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package channel implements the host side of the message protocol spoken with
// an isolated vault frame.
//
// Messages are a closed set of typed variants carried on the wire as
// {tag, data}. A Machine owns the single outstanding validation request id and
// the host-side state; every inbound envelope is checked against the live
// context generation and the expected sender origin before its payload is
// trusted.
package channel
