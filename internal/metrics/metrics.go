// Package metrics provides Prometheus instrumentation for the chat service:
// gauges for connections and joined users, counters for message outcomes
// and reports, and histograms for pipeline and classifier latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message outcomes recorded in MessagesTotal.
const (
	OutcomeSent     = "sent"
	OutcomeFlagged  = "flagged"
	OutcomeFallback = "fallback"
	OutcomeRejected = "rejected"
)

// Moderation failure reasons recorded in ModerationFailures.
const (
	FailureError   = "error"
	FailureTimeout = "timeout"
	FailurePanic   = "panic"
)

var (
	// ConnectionsTotal tracks the current number of open WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cyberguard_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// ActiveUsers tracks connections that have joined a room.
	ActiveUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cyberguard_active_users",
		Help: "Current number of users joined to a room",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cyberguard_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"outcome"}) // outcome = "sent", "flagged", "fallback", "rejected"

	// MessageLatency records time from frame receipt to broadcast.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cyberguard_message_latency_seconds",
		Help:    "Message pipeline latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cyberguard_moderation_latency_seconds",
		Help:    "Classifier call latency in seconds",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
	})

	ModerationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cyberguard_moderation_failures_total",
		Help: "Classifier calls that failed open",
	}, []string{"reason"})

	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cyberguard_reports_total",
		Help: "Total number of message reports accepted",
	})

	// ConnectRejected counts upgrades refused by the connection cap or the
	// per-IP rate limit.
	ConnectRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cyberguard_connect_rejected_total",
		Help: "WebSocket upgrades refused before the handshake",
	}, []string{"reason"}) // reason = "capacity", "rate_limited"
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ActiveUsers,
		MessagesTotal,
		MessageLatency,
		ModerationLatency,
		ModerationFailures,
		ReportsTotal,
		ConnectRejected,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
