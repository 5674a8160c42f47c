package register

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats holds the best-effort registration counters. They are incremented
// synchronously during request handling and read by the metrics endpoint;
// staleness in readers is acceptable, lost updates are not.
type Stats struct {
	Attempts  prometheus.Counter
	Completed prometheus.Counter
	Rejected  prometheus.Counter
}

// NewStats registers the counters on reg.
func NewStats(reg prometheus.Registerer) *Stats {
	factory := promauto.With(reg)
	return &Stats{
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "registration_attempts_total",
			Help: "Phone registration attempts started.",
		}),
		Completed: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrations_completed_total",
			Help: "Registrations completed with a signed key.",
		}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrations_rejected_total",
			Help: "Registration requests rejected as invalid, throttled or failed.",
		}),
	}
}
