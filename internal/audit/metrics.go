package audit

import "github.com/prometheus/client_golang/prometheus"

// securityEvents counts logged events by type and severity. Event types are
// a fixed enum, so cardinality stays bounded.
var securityEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "security_events_total",
		Help: "Security audit events logged.",
	},
	[]string{"type", "severity"},
)

func init() {
	prometheus.MustRegister(securityEvents)
}
