package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges are only written from the drain goroutine or under the queue lock.
var (
	submissionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meetassist",
			Subsystem: "queue",
			Name:      "submissions_total",
			Help:      "Requests accepted into the queue.",
		},
	)

	queueFullTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meetassist",
			Subsystem: "queue",
			Name:      "queue_full_total",
			Help:      "Enqueue attempts rejected by the depth limit.",
		},
	)

	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meetassist",
			Subsystem: "queue",
			Name:      "attempts_total",
			Help:      "Provider calls by outcome.",
		},
		[]string{"outcome"},
	)

	callDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "meetassist",
			Subsystem: "queue",
			Name:      "call_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "meetassist",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Requests waiting or in flight.",
		},
	)
)

const (
	outcomeOK          = "ok"
	outcomeRateLimited = "rate_limited"
	outcomeTransport   = "transport"
	outcomeUpstream    = "upstream"
)
