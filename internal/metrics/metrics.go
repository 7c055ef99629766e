package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_ledger_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticket_ledger_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	// Ledger metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_ledger_messages_appended_total",
			Help: "Total messages appended to ticket chains",
		},
		[]string{"message_type"},
	)

	AppendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_ledger_append_failures_total",
			Help: "Appends rejected, by reason",
		},
		[]string{"reason"},
	)

	CommitmentsBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_ledger_commitments_built_total",
			Help: "Merkle trees built over a ticket chain",
		},
	)

	ChainLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_ledger_chain_length",
			Help:    "Number of leaves per built tree",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_ledger_verifications_total",
			Help: "Inclusion proof checks, by result",
		},
		[]string{"result"},
	)

	SealDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_ledger_seal_duration_seconds",
			Help:    "Envelope sealing latency including key derivation",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Transport metrics
	ConnectedParties = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticket_ledger_connected_parties",
			Help: "Parties with an open notification socket",
		},
	)

	NotificationsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_ledger_notifications_queued_total",
			Help: "Notifications parked in the offline inbox",
		},
	)
)
