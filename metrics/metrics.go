// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub metrics
var (
	HubPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chathub_hub_published_total",
			Help: "Messages published to the broadcast hub",
		},
	)

	// HubDroppedTotal counts messages discarded from lagging subscriber buffers
	HubDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chathub_hub_dropped_total",
			Help: "Messages dropped from lagging subscriber buffers",
		},
	)

	HubSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chathub_hub_subscribers",
			Help: "Current broadcast hub subscriptions",
		},
	)
)

// Session metrics
var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chathub_sessions_active",
			Help: "Connected websocket sessions",
		},
	)

	// MessagesRejectedTotal counts inbound payloads dropped by reason
	// (empty_body, rate_limited, too_large)
	MessagesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chathub_messages_rejected_total",
			Help: "Inbound payloads dropped before broadcast, by reason",
		},
		[]string{"reason"},
	)

	MessagesAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chathub_messages_accepted_total",
			Help: "Inbound payloads accepted and broadcast",
		},
	)

	IdentitiesCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chathub_identities_cached",
			Help: "Fingerprints with a cached identity",
		},
	)
)

// History metrics
var (
	HistoryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chathub_history_errors_total",
			Help: "History store failures by operation",
		},
		[]string{"operation"},
	)
)
