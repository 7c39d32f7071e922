package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth attempt results.
const (
	AuthAccepted = "accepted"
	AuthRejected = "rejected"
	AuthInvalid  = "invalid_signature"
	AuthStale    = "stale_challenge"
)

// Decode failure stages.
const (
	StageHeader  = "header"
	StagePayload = "payload"
)

var (
	// Connection Metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "energygate_connections_active",
			Help: "Current number of open gateway connections",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "energygate_connections_total",
			Help: "Total number of accepted gateway connections",
		},
	)

	AuthTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "energygate_auth_timeouts_total",
			Help: "Connections closed for not authenticating in time",
		},
	)

	// Protocol Metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energygate_auth_attempts_total",
			Help: "ClientAuth messages processed, by result",
		},
		[]string{"result"},
	)

	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energygate_decode_errors_total",
			Help: "Inbound messages discarded as malformed",
		},
		[]string{"stage"},
	)

	SendErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "energygate_send_errors_total",
			Help: "Outbound messages that failed to encode or enqueue",
		},
	)

	SignatureVerifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "energygate_signature_verify_duration_seconds",
			Help:    "Time spent recovering signer addresses",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01},
		},
	)

	// Ledger Metrics
	LedgerQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "energygate_ledger_query_duration_seconds",
			Help:    "Duration of usage count queries",
			Buckets: prometheus.DefBuckets,
		},
	)

	QuotaQueryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "energygate_quota_query_errors_total",
			Help: "Usage count queries that failed",
		},
	)
)
