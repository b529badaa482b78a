// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldTraceID   = "trace_id"
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldAjaxID    = "ajax_id"

	// Process / channel fields
	FieldEvent      = "event"
	FieldComponent  = "component"
	FieldGeneration = "generation"
	FieldTag        = "tag"
	FieldFlow       = "flow"
	FieldOrigin     = "origin"
	FieldReason     = "reason"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldURL = "url"
)
