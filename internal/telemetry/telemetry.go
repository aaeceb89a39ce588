// Package telemetry exposes Prometheus metrics for the conversions service.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all conversions Prometheus metrics.
type Metrics struct {
	// Ingestion metrics
	WebhooksReceived *prometheus.CounterVec

	// Reconciliation metrics
	Matched          *prometheus.CounterVec
	PendingStored    prometheus.Counter
	WaitingStored    prometheus.Counter
	UnmatchedExpired prometheus.Counter
	ReconcileDelay   prometheus.Histogram

	// Hand-off metrics
	LeadCreateFailures prometheus.Counter
}

// NewMetrics registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on the given registerer. Tests pass a
// fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WebhooksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conversions_webhooks_received_total",
			Help: "Total webhooks received by provider and pipeline outcome",
		}, []string{"provider", "outcome"}),

		Matched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conversions_matched_total",
			Help: "Total conversions attributed to a click, by which side completed the match",
		}, []string{"side"}),

		PendingStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversions_pending_stored_total",
			Help: "Total webhooks cached awaiting a visitor signal",
		}),

		WaitingStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversions_waiting_stored_total",
			Help: "Total visitor signals cached awaiting a webhook",
		}),

		UnmatchedExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversions_unmatched_expired_total",
			Help: "Total conversions whose reconciliation window elapsed unmatched",
		}),

		ReconcileDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "conversions_reconcile_delay_seconds",
			Help:    "Delay between the first signal and its reconciliation",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300, 600},
		}),

		LeadCreateFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversions_lead_create_failures_total",
			Help: "Total attributed conversions the lead service rejected",
		}),
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
