package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// SignupsTotal counts account creations by outcome (created|duplicate|error).
	SignupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_signups_total",
			Help: "Total number of signup attempts",
		},
		[]string{"result"},
	)

	// TalkRequests counts intake submissions by derived status.
	TalkRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_talk_requests_total",
			Help: "Total number of talk-to-expert requests by initial status",
		},
		[]string{"status"},
	)

	// NotificationFanouts counts admin notification fan-out events by outcome.
	NotificationFanouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_notification_fanouts_total",
			Help: "Total number of admin notification fan-out events",
		},
		[]string{"result"},
	)

	// WebhookEvents counts received payment webhook events by type and outcome.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_payment_webhook_events_total",
			Help: "Total number of payment webhook deliveries",
		},
		[]string{"type", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atelier_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
