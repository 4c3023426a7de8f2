package metrics

import (
	"github.com/RallyPointLabs/rallypoint/backend/internal/governance"
	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics exports tick and tier-batch counters. Constructed and
// registered explicitly by the caller; no package-level state.
type LifecycleMetrics struct {
	transitions  *prometheus.CounterVec
	tickFailures *prometheus.CounterVec
	tierChecked  prometheus.Counter
	tierUpdated  prometheus.Counter
}

// NewLifecycleMetrics builds the collectors and registers them on the given
// registerer.
func NewLifecycleMetrics(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rallypoint_proposal_transitions_total",
			Help: "Proposal lifecycle transitions applied, by target status.",
		},
		[]string{"target"},
	)

	tickFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rallypoint_tick_failures_total",
			Help: "Per-item failures recorded during lifecycle ticks, by stage.",
		},
		[]string{"stage"},
	)

	tierChecked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rallypoint_tier_squads_checked_total",
		Help: "Squads examined by tier batch runs.",
	})

	tierUpdated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rallypoint_tier_squads_updated_total",
		Help: "Squads whose tier changed during tier batch runs.",
	})

	registerer.MustRegister(transitions, tickFailures, tierChecked, tierUpdated)

	return &LifecycleMetrics{
		transitions:  transitions,
		tickFailures: tickFailures,
		tierChecked:  tierChecked,
		tierUpdated:  tierUpdated,
	}
}

// RecordTransition counts one applied proposal transition.
func (m *LifecycleMetrics) RecordTransition(target governance.Status) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(target)).Inc()
}

// RecordTickFailure counts one per-item tick failure.
func (m *LifecycleMetrics) RecordTickFailure(stage string) {
	if m == nil {
		return
	}
	m.tickFailures.WithLabelValues(stage).Inc()
}

// RecordTierBatch counts the squads checked and updated by one run.
func (m *LifecycleMetrics) RecordTierBatch(checked, updated int) {
	if m == nil {
		return
	}
	m.tierChecked.Add(float64(checked))
	m.tierUpdated.Add(float64(updated))
}
