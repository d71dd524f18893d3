package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(queueDepth, staleRecoveredTotal, dlqTotal) }

var queueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Current length of each queue topic.",
	},
	[]string{"type", "topic"}, // topic: 'main', 'processing', 'dlq'
)

var staleRecoveredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "queue_stale_recovered_total",
		Help: "Messages moved back from processing to main by the recovery sweep.",
	},
	[]string{"type"},
)

var dlqTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "queue_dead_lettered_total",
		Help: "Messages moved to the dead-letter topic after exhausting retries.",
	},
	[]string{"type"},
)

func SetQueueDepth(jobType, topic string, n int64) {
	queueDepth.WithLabelValues(norm(jobType), norm(topic)).Set(float64(n))
}

func AddStaleRecovered(jobType string, n int) {
	staleRecoveredTotal.WithLabelValues(norm(jobType)).Add(float64(n))
}

func IncDeadLettered(jobType string) {
	dlqTotal.WithLabelValues(norm(jobType)).Inc()
}
