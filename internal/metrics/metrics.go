// Package metrics holds the Prometheus collectors exported by the daemon.
// Exposition (binding an HTTP handler) is left to the embedder; this
// package only registers collectors on the default registry, matching how
// maddy's own subsystems each keep a small metrics.go next to their logic.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var RequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "mxstsd",
		Name:      "requests_total",
		Help:      "Socketmap requests processed, by result",
	},
	[]string{"result"},
)

var ResolveDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "mxstsd",
		Name:      "resolve_duration_seconds",
		Help:      "Time spent resolving a domain's policy, including any cache wait",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"outcome"},
)

var CacheEntries = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "mxstsd",
		Name:      "cache_entries",
		Help:      "Number of domains currently present in the policy cache",
	},
)

var FetchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "mxstsd",
		Name:      "fetch_total",
		Help:      "Policy discovery attempts, by status",
	},
	[]string{"status"},
)

var SingleflightInflight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "mxstsd",
		Name:      "singleflight_inflight",
		Help:      "Resolutions currently in flight and shared across callers",
	},
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(ResolveDuration)
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(FetchTotal)
	prometheus.MustRegister(SingleflightInflight)
}
