package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pwsbridge_api_calls_total",
			Help: "Total Weather Underground PWS API calls",
		},
		[]string{"station", "endpoint", "status"},
	)

	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pwsbridge_api_latency_seconds",
			Help:    "PWS API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"station", "endpoint"},
	)

	ObservationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pwsbridge_observations_published_total",
			Help: "Total observations written to InfluxDB",
		},
		[]string{"station"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pwsbridge_publish_errors_total",
			Help: "Total failed InfluxDB writes",
		},
		[]string{"station"},
	)

	CredentialRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pwsbridge_credential_refreshes_total",
			Help: "Total API key fetches from wunderground.com",
		},
	)

	SpoolDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pwsbridge_spool_depth",
			Help: "Points waiting in the write-behind spool",
		},
	)
)
