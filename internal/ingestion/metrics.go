package ingestion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the build pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	rows               prometheus.Counter
	resources          *prometheus.CounterVec // by kind
	containsEdges      *prometheus.CounterVec // by family
	enrichmentFailures *prometheus.CounterVec // by source
	quads              prometheus.Counter
	phaseDuration      *prometheus.HistogramVec // by phase
}

// NewMetrics creates the pipeline collectors and registers them with reg.
// A nil registerer disables metrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relatio",
			Subsystem: "build",
			Name:      "rows_total",
			Help:      "Total number of input rows processed",
		}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relatio",
			Subsystem: "build",
			Name:      "resources_total",
			Help:      "Total number of resources materialized",
		}, []string{"kind"}),
		containsEdges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relatio",
			Subsystem: "build",
			Name:      "contains_edges_total",
			Help:      "Total number of contains edges discovered",
		}, []string{"family"}),
		enrichmentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relatio",
			Subsystem: "enrich",
			Name:      "failures_total",
			Help:      "Total number of failed enrichment sources",
		}, []string{"source"}),
		quads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relatio",
			Subsystem: "build",
			Name:      "quads_total",
			Help:      "Total number of quads emitted",
		}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relatio",
			Subsystem: "build",
			Name:      "phase_duration_seconds",
			Help:      "Duration of pipeline phases in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"phase"}),
	}

	for _, c := range []prometheus.Collector{
		m.rows, m.resources, m.containsEdges, m.enrichmentFailures, m.quads, m.phaseDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordRows(n int) {
	if m == nil {
		return
	}
	m.rows.Add(float64(n))
}

func (m *Metrics) recordResources(kind string, n int) {
	if m == nil {
		return
	}
	m.resources.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) recordContains(family string, n int) {
	if m == nil {
		return
	}
	m.containsEdges.WithLabelValues(family).Add(float64(n))
}

func (m *Metrics) recordEnrichmentFailure(source string) {
	if m == nil {
		return
	}
	m.enrichmentFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) recordQuads(n int) {
	if m == nil {
		return
	}
	m.quads.Add(float64(n))
}

func (m *Metrics) observePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}
