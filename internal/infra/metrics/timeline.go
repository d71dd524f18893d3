package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(commitsAppendedTotal, snapshotProjectionsTotal) }

var commitsAppendedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "commits_appended_total",
		Help: "Commits appended to the timeline, labeled by commit type.",
	},
	[]string{"type"},
)

var snapshotProjectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "snapshot_projections_total",
		Help: "Snapshot materializations, labeled by trigger.",
	},
	[]string{"trigger"}, // 'commit', 'rebuild', 'branch_switch'
)

func IncCommitAppended(commitType string) {
	commitsAppendedTotal.WithLabelValues(norm(commitType)).Inc()
}

func IncSnapshotProjection(trigger string) {
	snapshotProjectionsTotal.WithLabelValues(norm(trigger)).Inc()
}
