// Package metrics exposes Prometheus instrumentation for the registry, the
// default materializer, validation and the serialization bridge.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the module.
type Metrics struct {
	RegistryEntries      *prometheus.GaugeVec
	DefaultsMaterialized *prometheus.CounterVec
	ValidationFailures   *prometheus.CounterVec
	BridgeNodes          *prometheus.CounterVec
	SchemaLookups        *prometheus.CounterVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RegistryEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datamodels_registry_entries",
			Help: "Number of URIs per registry map",
		}, []string{"map"}),
		DefaultsMaterialized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "datamodels_defaults_materialized_total",
			Help: "Total number of field defaults materialized on first access",
		}, []string{"kind"}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "datamodels_validation_failures_total",
			Help: "Total number of validation failures by phase (assign, commit, read)",
		}, []string{"phase"}),
		BridgeNodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "datamodels_bridge_nodes_total",
			Help: "Total number of nodes converted by the serialization bridge",
		}, []string{"direction"}),
		SchemaLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "datamodels_schema_lookups_total",
			Help: "Class schema descriptor lookups by result (hit, miss)",
		}, []string{"result"}),
	}
}

var (
	registry = prometheus.NewRegistry()
	current  atomic.Pointer[Metrics]
)

func init() { current.Store(New(registry)) }

// Default returns the process metrics.
func Default() *Metrics { return current.Load() }

// Registry returns the Prometheus registry the process metrics live on, for
// mounting on an exporter.
func Registry() *prometheus.Registry { return registry }

// SetRegistryEntries records the size of one registry map.
func (m *Metrics) SetRegistryEntries(name string, n int) {
	m.RegistryEntries.WithLabelValues(name).Set(float64(n))
}

// IncDefaultMaterialized records one materialized default of the given node kind.
func (m *Metrics) IncDefaultMaterialized(kind string) {
	m.DefaultsMaterialized.WithLabelValues(kind).Inc()
}

// IncValidationFailure records one failed validation in phase.
func (m *Metrics) IncValidationFailure(phase string) {
	m.ValidationFailures.WithLabelValues(phase).Inc()
}

// IncBridge records one node converted in direction ("read" or "write").
func (m *Metrics) IncBridge(direction string) {
	m.BridgeNodes.WithLabelValues(direction).Inc()
}

// IncSchemaLookup records a class descriptor lookup result ("hit" or "miss").
func (m *Metrics) IncSchemaLookup(result string) {
	m.SchemaLookups.WithLabelValues(result).Inc()
}
