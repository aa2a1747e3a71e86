// Package metrics defines the Prometheus collectors of the payment engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Confirmations        *prometheus.CounterVec
	ConfirmationLatency  prometheus.Histogram
	SignatureFailures    *prometheus.CounterVec
	Reallocations        *prometheus.CounterVec
	NotificationFailures prometheus.Counter
	NotificationsDropped prometheus.Counter
	LedgerDriftCampaigns prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "charitylink_confirmations_total",
			Help: "payment confirmations by channel and result",
		}, []string{"channel", "result"}),
		ConfirmationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "charitylink_confirmation_duration_seconds",
			Help:    "time spent confirming a payment, lock wait included",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),
		SignatureFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "charitylink_signature_failures_total",
			Help: "gateway callbacks rejected for a bad signature",
		}, []string{"gateway"}),
		Reallocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "charitylink_reallocations_total",
			Help: "excess fund reallocations by policy and action",
		}, []string{"policy", "action"}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "charitylink_notification_failures_total",
			Help: "notifications that could not be delivered",
		}),
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "charitylink_notifications_dropped_total",
			Help: "notifications dropped because the dispatch queue was full",
		}),
		LedgerDriftCampaigns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "charitylink_ledger_drift_campaigns",
			Help: "campaigns whose current amount differs from their ledger balance",
		}),
	}
}

// NewUnregistered is for callers that do not export metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
