// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NegotiationsTotal counts session negotiations by outcome.
	NegotiationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultembed_vault_negotiations_total",
		Help: "Vault session negotiations by outcome",
	}, []string{"outcome"}) // outcome=success|rejected|timeout|transport|invalid

	negotiationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultembed_vault_negotiation_duration_seconds",
		Help:    "Wall time of vault session negotiations by outcome",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
	}, []string{"outcome"})
)

// ObserveNegotiation records the outcome and duration of one negotiation attempt.
func ObserveNegotiation(outcome string, d time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	NegotiationsTotal.WithLabelValues(outcome).Inc()
	negotiationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
