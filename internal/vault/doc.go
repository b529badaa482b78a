// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package vault negotiates short-lived sessions with a remote payment vault.
//
// A session request is built from merchant credentials, serialized to the
// canonical JSON form the vault expects, signed with HMAC-SHA512 keyed by the
// hex form of the shared secret, and posted once. The secret never leaves the
// process: only the signature and a client-generated trace id travel in the
// X-VAULT-HMAC and X-VAULT-TRACE-UID headers.
//
// Negotiate makes exactly one attempt. Retrying a signed, timestamped request
// changes its freshness and is left to callers.
package vault
