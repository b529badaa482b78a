// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Vault attributes
	VaultTraceUIDKey = "vault.trace_uid"
	VaultAjaxIDKey   = "vault.ajax_id"
	VaultOutcomeKey  = "vault.outcome"

	// Channel attributes
	ChannelFlowKey       = "channel.flow"
	ChannelGenerationKey = "channel.generation"
	ChannelTagKey        = "channel.tag"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// NegotiationAttributes creates span attributes for one session negotiation.
func NegotiationAttributes(traceUID string, ajaxID int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(VaultTraceUIDKey, traceUID),
		attribute.Int(VaultAjaxIDKey, ajaxID),
	}
}

// ChannelAttributes creates span attributes for a loaded context.
func ChannelAttributes(flow string, generation uint64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if flow != "" {
		attrs = append(attrs, attribute.String(ChannelFlowKey, flow))
	}
	return append(attrs, attribute.Int64(ChannelGenerationKey, int64(generation)))
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
