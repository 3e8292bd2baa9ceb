package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mobile_wallet",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider operations including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"}, // operation: authenticate, request_payment, check_status
	)

	HTTPRetriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mobile_wallet",
			Name:      "http_retries_total",
			Help:      "Outbound provider request retries.",
		},
		[]string{"provider", "reason"}, // reason: transport, status, rate_limited
	)

	WebhooksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mobile_wallet",
			Name:      "webhooks_total",
			Help:      "Inbound provider webhooks by outcome.",
		},
		[]string{"provider", "outcome"}, // outcome: processed, invalid_signature, invalid_payload, not_found, error
	)

	TransactionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mobile_wallet",
			Name:      "transactions_total",
			Help:      "Transactions created and terminal transitions applied.",
		},
		[]string{"provider", "status"},
	)
)
