package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Inbound message handling
	MessagesProcessed *prometheus.CounterVec // by final intent
	HandleLatency     prometheus.Histogram

	// Classification outcomes: source is "ai" or "lexical", reason for
	// lexical is "unavailable" or "low_confidence"
	Classifications *prometheus.CounterVec

	// Search tier that produced the answer: "hybrid", "lexical", "keyword", "none"
	SearchTier *prometheus.CounterVec

	// Confirmation lifecycle: "confirmed", "declined", "abandoned", "stale"
	Confirmations *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		MessagesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tasknest_messages_processed_total",
			Help: "Total inbound messages processed, by resolved intent",
		}, []string{"intent"}),

		HandleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tasknest_message_handle_duration_seconds",
			Help:    "End-to-end inbound message handling latency",
			Buckets: prometheus.DefBuckets,
		}),

		Classifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tasknest_classifications_total",
			Help: "Classification outcomes by source and fallback reason",
		}, []string{"source", "reason"}),

		SearchTier: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tasknest_search_tier_total",
			Help: "Which search tier answered a task lookup",
		}, []string{"tier"}),

		Confirmations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tasknest_confirmations_total",
			Help: "Confirmation flow outcomes",
		}, []string{"outcome"}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance (nil before InitMetrics).
func GetMetrics() *Metrics {
	return globalMetrics
}

// countClassification is a nil-safe helper for the router and classifier.
func countClassification(source, reason string) {
	if globalMetrics != nil {
		globalMetrics.Classifications.WithLabelValues(source, reason).Inc()
	}
}

// countSearchTier is a nil-safe helper for the task locator.
func countSearchTier(tier string) {
	if globalMetrics != nil {
		globalMetrics.SearchTier.WithLabelValues(tier).Inc()
	}
}

// countConfirmation is a nil-safe helper for the confirmation flow.
func countConfirmation(outcome string) {
	if globalMetrics != nil {
		globalMetrics.Confirmations.WithLabelValues(outcome).Inc()
	}
}
