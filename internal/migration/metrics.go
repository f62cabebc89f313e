package migration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record outcomes as exported to metrics.
const (
	OutcomeMigrated = "migrated"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Collector holds the run's Prometheus instruments. Registration happens on
// the registerer passed in, so tests can use a private registry.
type Collector struct {
	recordsTotal  *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	phaseActive   *prometheus.GaugeVec

	contactDegradations *prometheus.CounterVec
	ownersSynthesized   prometheus.Counter
	mediaProbes         *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		recordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "v2_migrate_records_total",
				Help: "Records processed per phase and outcome",
			},
			[]string{"phase", "outcome"}, // migrated, skipped, failed
		),

		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "v2_migrate_phase_duration_seconds",
				Help:    "Wall time per migration phase",
				Buckets: []float64{1, 10, 60, 300, 600, 1800, 3600, 7200},
			},
			[]string{"phase"},
		),

		phaseActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "v2_migrate_phase_active",
				Help: "1 while the phase is running",
			},
			[]string{"phase"},
		),

		contactDegradations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "v2_migrate_contact_degradations_total",
				Help: "User records landed below the direct rung of the conflict ladder",
			},
			[]string{"rung"},
		),

		ownersSynthesized: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "v2_migrate_owners_synthesized_total",
				Help: "Venue owners created because the legacy user row was missing",
			},
		),

		mediaProbes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "v2_migrate_media_probes_total",
				Help: "Legacy asset reachability probes by result",
			},
			[]string{"result"}, // reachable, unreachable
		),
	}
}

func (c *Collector) RecordOutcome(phase, outcome string) {
	c.recordsTotal.WithLabelValues(phase, outcome).Inc()
}

func (c *Collector) ObservePhase(phase string, seconds float64) {
	c.phaseDuration.WithLabelValues(phase).Observe(seconds)
}

func (c *Collector) PhaseStarted(phase string) {
	c.phaseActive.WithLabelValues(phase).Set(1)
}

func (c *Collector) PhaseFinished(phase string) {
	c.phaseActive.WithLabelValues(phase).Set(0)
}

func (c *Collector) RecordDegradation(rung string) {
	c.contactDegradations.WithLabelValues(rung).Inc()
}

func (c *Collector) RecordOwnerSynthesized() {
	c.ownersSynthesized.Inc()
}

func (c *Collector) RecordMediaProbe(reachable bool) {
	result := "unreachable"
	if reachable {
		result = "reachable"
	}
	c.mediaProbes.WithLabelValues(result).Inc()
}
