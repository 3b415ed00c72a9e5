package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		lifecycleTransitionsTotal,
		sweepDurationSeconds,
		notifySendsTotal,
	)
}

var (
	lifecycleTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Subscription lifecycle transitions (warned_3/warned_1/expired/deletion_warned_1/deletion_warned_2/deleted).",
		},
		[]string{"transition"},
	)

	sweepDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of scheduled sweeps by job.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"job"},
	)

	notifySendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_sends_total",
			Help: "Notification deliveries by outcome (ok/error).",
		},
		[]string{"outcome"},
	)
)

func IncLifecycleTransition(transition string) {
	lifecycleTransitionsTotal.WithLabelValues(norm(transition)).Inc()
}

func ObserveSweep(job string, seconds float64) {
	sweepDurationSeconds.WithLabelValues(norm(job)).Observe(seconds)
}

func IncNotify(outcome string) {
	notifySendsTotal.WithLabelValues(norm(outcome)).Inc()
}
