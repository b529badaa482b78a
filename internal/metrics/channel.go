// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultembed_channel_messages_total",
		Help: "Messages crossing the host/frame channel by direction and tag",
	}, []string{"direction", "tag"}) // direction=inbound|outbound

	// ChannelDroppedTotal counts inbound messages the host refused to act on.
	ChannelDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultembed_channel_dropped_total",
		Help: "Inbound channel messages dropped by reason",
	}, []string{"reason"}) // reason=stale_response|stale_generation|origin|unexpected|malformed

	// ChannelTerminalTotal counts terminal channel outcomes.
	ChannelTerminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultembed_channel_terminal_total",
		Help: "Terminal channel outcomes by kind",
	}, []string{"kind"}) // kind=succeeded|failed|expired|field_errors|transport

	contextsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaultembed_contexts_loaded",
		Help: "Isolated contexts currently loaded by embedding controllers",
	})
)

// RecordChannelMessage counts one message crossing the channel.
func RecordChannelMessage(direction, tag string) {
	if tag == "" {
		tag = "unknown"
	}
	channelMessages.WithLabelValues(direction, tag).Inc()
}

// RecordChannelDrop counts one inbound message dropped for reason.
func RecordChannelDrop(reason string) {
	ChannelDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordChannelTerminal counts one terminal outcome.
func RecordChannelTerminal(kind string) {
	ChannelTerminalTotal.WithLabelValues(kind).Inc()
}

// ContextLoaded tracks an isolated context being loaded.
func ContextLoaded() { contextsLoaded.Inc() }

// ContextUnloaded tracks an isolated context being unloaded.
func ContextUnloaded() { contextsLoaded.Dec() }
