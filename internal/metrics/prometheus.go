// Package metrics declares the Prometheus metrics surface for corehttp's
// pipeline, workers, and supervisor. Grounded on the teacher's
// promauto-based metrics package, generalized from its chaos-app surface
// to the request-serving daemon's own (spec §9).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace is the Prometheus metrics namespace for all corehttp metrics.
const Namespace = "corehttp"

// Request metrics track pipeline invocations.
var (
	// RequestsTotal counts total requests by status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Total number of requests handled, by response status code.",
		},
		[]string{"status"},
	)

	// RequestDuration tracks pipeline invocation duration in seconds.
	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Pipeline invocation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// InFlightRequests tracks currently-dispatched requests.
	InFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "in_flight_requests",
			Help:      "Number of requests currently being processed.",
		},
	)

	// ParseErrorsTotal counts malformed requests rejected by the HTTP/1.1
	// parser, by the status code assigned (400/414/501/505).
	ParseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "parse_errors_total",
			Help:      "Total number of requests rejected during parsing, by status code.",
		},
		[]string{"status"},
	)
)

// Worker metrics track individual worker processes.
var (
	// WorkerRespawnsTotal counts worker respawns performed by the
	// supervisor, by slot index.
	WorkerRespawnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "worker_respawns_total",
			Help:      "Total number of times the supervisor has respawned a worker slot.",
		},
		[]string{"slot"},
	)

	// WorkerHeartbeatAgeSeconds tracks how long ago each slot's
	// heartbeat cell was last observed to advance.
	WorkerHeartbeatAgeSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "worker_heartbeat_age_seconds",
			Help:      "Seconds since the supervisor last observed this worker slot's heartbeat advance.",
		},
		[]string{"slot"},
	)
)

// Queue metrics track the message-queue adapter transport.
var (
	// QueueFramesTotal counts frames moved through the queue adapter, by
	// direction (inbound/outbound).
	QueueFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queue_frames_total",
			Help:      "Total number of message-queue frames processed, by direction.",
		},
		[]string{"direction"},
	)

	// QueueFrameErrorsTotal counts malformed frames discarded by the
	// queue worker.
	QueueFrameErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queue_frame_errors_total",
			Help:      "Total number of malformed message-queue frames discarded.",
		},
	)
)

// Supervisor lifecycle metrics.
var (
	// SupervisorState reports the supervisor's lifecycle state as a
	// gauge, set to 1 for the current state and 0 for all others.
	SupervisorState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "supervisor_state",
			Help:      "1 for the supervisor's current lifecycle state, 0 otherwise.",
		},
		[]string{"state"},
	)
)
