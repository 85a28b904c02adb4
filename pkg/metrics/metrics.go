// Package metrics exposes Prometheus instrumentation for the memory graph.
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the memory graph collectors.
type Recorder struct {
	observations    prometheus.Counter
	rejections      *prometheus.CounterVec
	entities        *prometheus.CounterVec
	ambiguities     *prometheus.CounterVec
	storeRetries    prometheus.Counter
	storeFailures   prometheus.Counter
	decayRuns       prometheus.Counter
	decayedEntities prometheus.Counter
	robotNodes      prometheus.Gauge
	worldNodes      prometheus.Gauge
	ingestDuration  prometheus.Histogram
	reorderBuffered prometheus.Gauge
}

// New registers the collectors on reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		observations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Observations committed to the trajectory",
		}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_rejected_total",
			Help:      "Observations rejected by reason",
		}, []string{"reason"}),
		entities: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_resolutions_total",
			Help:      "Entity mentions resolved, by outcome",
		}, []string{"outcome"}),
		ambiguities: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_ambiguities_total",
			Help:      "Tied entity matches, by deciding rule",
		}, []string{"rule"}),
		storeRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Store transactions retried",
		}),
		storeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Store transactions that failed permanently",
		}),
		decayRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decay_runs_total",
			Help:      "Confidence decay passes",
		}),
		decayedEntities: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decayed_entities_total",
			Help:      "Entity confidence reductions applied by decay",
		}),
		robotNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "robot_nodes",
			Help:      "Robot nodes in the trajectory",
		}),
		worldNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "world_nodes",
			Help:      "World entities in the registry",
		}),
		ingestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time to plan, persist and commit one observation",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		reorderBuffered: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reorder_buffered",
			Help:      "Observations held in the reorder buffer",
		}),
	}
}

// Ingested records a committed observation.
func (r *Recorder) Ingested(d time.Duration, created, merged int) {
	if r == nil {
		return
	}
	r.observations.Inc()
	r.ingestDuration.Observe(d.Seconds())
	r.entities.WithLabelValues("created").Add(float64(created))
	r.entities.WithLabelValues("merged").Add(float64(merged))
}

// Rejected records a rejected observation.
func (r *Recorder) Rejected(reason string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(reason).Inc()
}

// Ambiguity records a tie decided by rule.
func (r *Recorder) Ambiguity(rule string) {
	if r == nil {
		return
	}
	r.ambiguities.WithLabelValues(rule).Inc()
}

// StoreRetry records one retried store transaction.
func (r *Recorder) StoreRetry() {
	if r == nil {
		return
	}
	r.storeRetries.Inc()
}

// StoreFailure records a store transaction that was given up.
func (r *Recorder) StoreFailure() {
	if r == nil {
		return
	}
	r.storeFailures.Inc()
}

// Decayed records a decay pass.
func (r *Recorder) Decayed(n int) {
	if r == nil {
		return
	}
	r.decayRuns.Inc()
	r.decayedEntities.Add(float64(n))
}

// Sizes sets the graph size gauges.
func (r *Recorder) Sizes(robotNodes, worldNodes int) {
	if r == nil {
		return
	}
	r.robotNodes.Set(float64(robotNodes))
	r.worldNodes.Set(float64(worldNodes))
}

// Buffered sets the reorder buffer gauge.
func (r *Recorder) Buffered(n int) {
	if r == nil {
		return
	}
	r.reorderBuffered.Set(float64(n))
}
