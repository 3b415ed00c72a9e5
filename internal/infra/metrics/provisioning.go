package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		provisioningTotal,
		retryQueueDepth,
		retryAttemptsTotal,
	)
}

var (
	provisioningTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_total",
			Help: "Provisioning orchestrations by action (issue/renew) and outcome (ok/error).",
		},
		[]string{"action", "outcome"},
	)

	retryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "retry_queue_depth",
			Help: "Open retry ledger entries awaiting re-attempt or compensation.",
		},
	)

	retryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Retry sweep executions of ledger entries by outcome (completed/retry/refunded/failed).",
		},
		[]string{"outcome"},
	)
)

func IncProvisioning(action, outcome string) {
	provisioningTotal.WithLabelValues(norm(action), norm(outcome)).Inc()
}

func SetRetryQueueDepth(n int) {
	retryQueueDepth.Set(float64(n))
}

func IncRetryAttempt(outcome string) {
	retryAttemptsTotal.WithLabelValues(norm(outcome)).Inc()
}
