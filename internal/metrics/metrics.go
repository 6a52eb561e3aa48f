package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherdial_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cipherdial_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	RegistrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherdial_registrations_total",
			Help: "Total accounts registered",
		},
	)

	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherdial_logins_total",
			Help: "Total login attempts",
		},
		[]string{"outcome"}, // "success" or "failure"
	)

	DialogsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherdial_dialogs_created_total",
			Help: "Total dialogs created",
		},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherdial_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"content_type"}, // "text" or "image"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherdial_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherdial_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
