// Package metrics holds the Prometheus collectors for parsing and
// compilation. Collectors live on an explicit registry rather than the
// global default so that tests and batch runs stay isolated.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const metricsNamespace = "regparser"

// Collector groups the collectors. A nil *Collector is valid: every Record
// method is a no-op on nil.
type Collector struct {
	registry *prometheus.Registry

	// CompilePasses counts compiler passes over pending changes.
	CompilePasses prometheus.Counter

	// ChangesApplied counts applied changes.
	// Labels: action (PUT, POST, DELETE, MOVE, RESERVE, DESIGNATE, INSERT, KEEP)
	ChangesApplied *prometheus.CounterVec

	// ChangesForced counts changes applied in the final forced pass.
	ChangesForced prometheus.Counter

	// CitationsFound counts extracted citations.
	// Labels: kind (internal, external, cfr)
	CitationsFound *prometheus.CounterVec

	// CitationsMissing counts citations to labels absent from the tree.
	CitationsMissing prometheus.Counter

	// InternedNodes tracks the FrozenNode pool size.
	InternedNodes prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		CompilePasses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "compiler",
			Name:      "passes_total",
			Help:      "Compiler passes over pending changes",
		}),
		ChangesApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "compiler",
			Name:      "changes_applied_total",
			Help:      "Notice changes applied by action",
		}, []string{"action"}),
		ChangesForced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "compiler",
			Name:      "changes_forced_total",
			Help:      "Conflicting changes applied in the forced final pass",
		}),
		CitationsFound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "citations",
			Name:      "found_total",
			Help:      "Citations extracted by kind",
		}, []string{"kind"}),
		CitationsMissing: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "citations",
			Name:      "missing_total",
			Help:      "Citations to labels not present in the tree",
		}),
		InternedNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "tree",
			Name:      "interned_nodes",
			Help:      "FrozenNodes held by the interning pool",
		}),
	}
}

// Registry exposes the underlying registry.
func (collector *Collector) Registry() *prometheus.Registry {
	if collector == nil {
		return nil
	}
	return collector.registry
}

// RecordPass records one compiler pass.
func (collector *Collector) RecordPass() {
	if collector == nil {
		return
	}
	collector.CompilePasses.Inc()
}

// RecordChange records an applied change; forced marks the final pass.
func (collector *Collector) RecordChange(action string, forced bool) {
	if collector == nil {
		return
	}
	collector.ChangesApplied.WithLabelValues(action).Inc()
	if forced {
		collector.ChangesForced.Inc()
	}
}

// RecordCitation records an extracted citation.
func (collector *Collector) RecordCitation(kind string) {
	if collector == nil {
		return
	}
	collector.CitationsFound.WithLabelValues(kind).Inc()
}

// RecordMissingCitation records a citation whose label was not found.
func (collector *Collector) RecordMissingCitation() {
	if collector == nil {
		return
	}
	collector.CitationsMissing.Inc()
}

// SetInternedNodes records the interning pool size.
func (collector *Collector) SetInternedNodes(size int) {
	if collector == nil {
		return
	}
	collector.InternedNodes.Set(float64(size))
}

// WriteText writes every metric in the Prometheus text exposition format.
func (collector *Collector) WriteText(writer io.Writer) error {
	if collector == nil {
		return nil
	}
	families, err := collector.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(writer, family); err != nil {
			return fmt.Errorf("writing metric %s: %w", family.GetName(), err)
		}
	}
	return nil
}
