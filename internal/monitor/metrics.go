package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"stackd/internal/supervise"
)

var (
	serviceState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stackd",
			Subsystem: "service",
			Name:      "state",
			Help:      "Current lifecycle state per service (1 for the active state)",
		},
		[]string{"service", "state"},
	)

	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackd",
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Total health probe results by outcome",
		},
		[]string{"service", "outcome"},
	)

	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stackd",
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Duration of health probes in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	restartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackd",
			Subsystem: "service",
			Name:      "restarts_total",
			Help:      "Total restarts by trigger (auto or manual)",
		},
		[]string{"service", "trigger"},
	)
)

func init() {
	prometheus.MustRegister(serviceState, probesTotal, probeDuration, restartsTotal)
}

var allStates = []supervise.State{
	supervise.StateStopped,
	supervise.StateStarting,
	supervise.StateRunning,
	supervise.StateUnhealthy,
	supervise.StateRestarting,
	supervise.StateFailed,
}

// setStateGauge marks the active state 1 and all others 0 for a service.
func setStateGauge(service string, current supervise.State) {
	for _, st := range allStates {
		v := 0.0
		if st == current {
			v = 1.0
		}
		serviceState.WithLabelValues(service, string(st)).Set(v)
	}
}
