package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequests) }

var cacheRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Cache decorator lookups partitioned by outcome.",
	},
	[]string{"cache", "outcome"}, // outcome: 'hit', 'miss', 'bypass'
)

func IncCacheRequest(cache, outcome string) {
	cacheRequests.WithLabelValues(norm(cache), norm(outcome)).Inc()
}
