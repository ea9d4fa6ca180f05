package breaker

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentd",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open).",
		},
		[]string{"name"},
	)
	metricTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions.",
		},
		[]string{"name", "to"},
	)
)

func init() {
	prometheus.MustRegister(metricState, metricTransitions)
}

func stateValue(s State) float64 {
	switch s {
	case StateOpen:
		return 2
	case StateHalfOpen:
		return 1
	default:
		return 0
	}
}
