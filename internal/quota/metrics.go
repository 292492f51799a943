package quota

import "github.com/prometheus/client_golang/prometheus"

var (
	// quotaDenials counts checkRateLimit denials by endpoint category.
	// Keyed by category, not integration, to keep cardinality bounded.
	quotaDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_denials_total",
			Help: "Rate limit checks that returned allowed=false.",
		},
		[]string{"category"},
	)

	// quotaAlerts counts threshold crossings by category and level.
	quotaAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_threshold_alerts_total",
			Help: "Quota usage threshold crossings.",
		},
		[]string{"category", "level"},
	)

	// quotaStoreFailures counts store outages observed while checking or
	// tracking usage. Checks fail closed when this fires.
	quotaStoreFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_store_failures_total",
			Help: "Quota store errors; checks fail closed on these.",
		},
	)
)

func init() {
	prometheus.MustRegister(quotaDenials, quotaAlerts, quotaStoreFailures)
}
