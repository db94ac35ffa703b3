// Package metrics exposes pipeline counters through a dedicated Prometheus
// registry and writes them in the node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "yaraforge"

// Metrics groups the pipeline collectors. All methods are safe on a nil
// receiver.
type Metrics struct {
	registry *prometheus.Registry

	filesClassified *prometheus.CounterVec
	failures        *prometheus.CounterVec
	rulesWritten    prometheus.Counter
	tagsSkipped     prometheus.Counter
	stageDuration   *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		filesClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_classified_total",
			Help:      "Samples matched by a classifier, by tag.",
		}, []string{"tag"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_failures_total",
			Help:      "Failed classifier, analyser and processor invocations.",
		}, []string{"kind", "name"}),
		rulesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_written_total",
			Help:      "Rule documents produced.",
		}),
		tagsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_skipped_total",
			Help:      "Tags that produced no rule.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
	}
	m.registry.MustRegister(m.filesClassified, m.failures, m.rulesWritten, m.tagsSkipped, m.stageDuration)
	return m
}

// Registry returns the registry holding the pipeline collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FileClassified(tag string) {
	if m == nil {
		return
	}
	m.filesClassified.WithLabelValues(tag).Inc()
}

// Failure counts a failed invocation. kind is classifier, analyser or
// processor.
func (m *Metrics) Failure(kind, name string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind, name).Inc()
}

func (m *Metrics) RuleWritten() {
	if m == nil {
		return
	}
	m.rulesWritten.Inc()
}

func (m *Metrics) TagSkipped() {
	if m == nil {
		return
	}
	m.tagsSkipped.Inc()
}

// ObserveStage records the time elapsed since start for stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes the current values to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
