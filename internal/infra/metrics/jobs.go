package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsProcessedTotal, jobDurationSeconds, jobRetriesTotal, jobsSubmittedTotal)
}

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Total number of jobs processed, labeled by type and final status.",
	},
	[]string{"type", "status"}, // 'done', 'failed', 'requeued'
)

var jobsSubmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_submitted_total",
		Help: "Total number of jobs accepted at submission, labeled by type.",
	},
	[]string{"type", "idempotent_replay"},
)

var jobDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Wall time of a single Process call.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	},
	[]string{"type"},
)

var jobRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "job_retries_total",
		Help: "Count of nack-driven redeliveries, labeled by type.",
	},
	[]string{"type"},
)

func IncJobProcessed(jobType, status string) {
	jobsProcessedTotal.WithLabelValues(norm(jobType), norm(status)).Inc()
}

func IncJobSubmitted(jobType string, replay bool) {
	lbl := "no"
	if replay {
		lbl = "yes"
	}
	jobsSubmittedTotal.WithLabelValues(norm(jobType), lbl).Inc()
}

func ObserveJobDuration(jobType string, seconds float64) {
	jobDurationSeconds.WithLabelValues(norm(jobType)).Observe(seconds)
}

func IncJobRetry(jobType string) {
	jobRetriesTotal.WithLabelValues(norm(jobType)).Inc()
}
