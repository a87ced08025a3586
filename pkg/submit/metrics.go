package submit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts outcomes and the latency of each phase.
type Metrics struct {
	Outcomes *prometheus.CounterVec
	Phases   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txcommit",
			Name:      "outcomes_total",
			Help:      "Submission attempts by outcome.",
		}, []string{"kind"}),
		Phases: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "txcommit",
			Name:      "phase_seconds",
			Help:      "Latency of endorsement, ordering and commit.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"phase"}),
	}
	reg.MustRegister(m.Outcomes, m.Phases)
	return m
}

func (m *Metrics) observe(o Outcome) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(o.Kind.String()).Inc()

	t := o.Timeline
	if !t.Endorsed.IsZero() {
		m.Phases.WithLabelValues("endorse").Observe(t.EndorseLatency().Seconds())
	}
	if !t.Acknowledged.IsZero() {
		m.Phases.WithLabelValues("order").Observe(t.OrderLatency().Seconds())
	}
	if !t.Observed.IsZero() {
		m.Phases.WithLabelValues("commit").Observe(t.CommitLatency().Seconds())
	}
}
