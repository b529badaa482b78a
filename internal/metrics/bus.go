// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BusDroppedTotal counts envelopes the in-memory transport could not hand over.
	// The direction label is "to_frame" or "to_host"; topics carry session ids and are never used as labels.
	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultembed_bus_dropped_total",
		Help: "Total number of in-memory transport envelope drops by direction and reason",
	}, []string{"direction", "reason"})
)

// IncBusDropReason records a dropped bus envelope with a concrete reason.
func IncBusDropReason(direction, reason string) {
	if direction == "" {
		direction = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(direction, reason).Inc()
}
