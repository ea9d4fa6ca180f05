package queue

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentd",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of requests waiting in the priority queue.",
		},
	)
	metricInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentd",
			Subsystem: "queue",
			Name:      "in_flight",
			Help:      "Number of requests currently being processed.",
		},
	)
	metricOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "queue",
			Name:      "requests_total",
			Help:      "Terminal request outcomes.",
		},
		[]string{"outcome"},
	)
	metricWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentd",
			Subsystem: "queue",
			Name:      "wait_seconds",
			Help:      "Time spent queued before a worker picked the request up.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	metricProcessSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentd",
			Subsystem: "queue",
			Name:      "process_seconds",
			Help:      "Time spent executing a request.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(metricDepth, metricInFlight, metricOutcomes, metricWaitSeconds, metricProcessSeconds)
}
