package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"agentd/internal/queue"
)

var (
	metricHTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)

	metricHTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	metricHTTPInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "HTTP requests currently being served",
		},
	)

	metricRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "http",
			Name:      "rejections_total",
			Help:      "Submissions turned away at admission, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(metricHTTPRequests, metricHTTPLatency, metricHTTPInflight, metricRejections)
}

// MetricsMiddleware instruments every request. The route label uses the
// chi pattern ("/requests/{id}") so ids do not blow up label cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metricHTTPInflight.Inc()
		defer metricHTTPInflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		// The pattern is only known after routing, so read it post-serve.
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metricHTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metricHTTPLatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveRejection counts a submission the admission plane refused,
// labelled with why. Errors outside the rejection taxonomy are ignored.
func ObserveRejection(err error) {
	var reason string
	switch {
	case queue.IsTooBusy(err):
		reason = "queue_full"
	case queue.IsConflict(err):
		reason = "duplicate_id"
	case queue.IsDegraded(err):
		reason = "degraded"
	case queue.IsShutdown(err):
		reason = "shutdown"
	default:
		return
	}
	metricRejections.WithLabelValues(reason).Inc()
}
