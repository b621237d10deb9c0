// Package metrics contains the Prometheus metrics exported by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsAccepted counts accepted connections by listener mode.
	ConnectionsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nter_connections_accepted_total",
			Help: "Number of connections accepted.",
		},
		[]string{"mode"},
	)

	// ActiveConnections is the number of connections currently handled.
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nter_active_connections",
			Help: "Number of connections currently being handled.",
		},
		[]string{"mode"},
	)

	// ConnectionResults counts terminated connections by mode and outcome
	// ("ok", "cancelled", "error").
	ConnectionResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nter_connection_results_total",
			Help: "Number of terminated connections by outcome.",
		},
		[]string{"mode", "result"},
	)

	// BytesReceived counts payload bytes received by throughput handlers.
	BytesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nter_payload_bytes_received_total",
			Help: "Number of payload bytes received, excluding end markers.",
		},
	)

	// RunsCompleted counts runs by completion status.
	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nter_runs_total",
			Help: "Number of runs received.",
		},
		[]string{"complete"},
	)

	// RunThroughput is the distribution of per-run throughput, in Mbps.
	RunThroughput = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nter_run_throughput_mbps",
			Help:    "Throughput of complete runs in Mbps.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		},
	)

	// EchoRoundTrips counts bytes echoed by echo handlers.
	EchoRoundTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nter_echo_round_trips_total",
			Help: "Number of latency round trips echoed.",
		},
	)
)
