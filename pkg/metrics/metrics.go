package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "pisi"

// Metrics of a conversion run
type Metrics struct {
	registry *prometheus.Registry

	units        *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	packages     *prometheus.CounterVec
	bytes        prometheus.Counter
	warnings     prometheus.Counter
	lookups      *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	fetchBytes   prometheus.Counter
}

// New metrics, on a fresh registry
func New(opts ...Option) *Metrics {
	s := &settings{
		namespace: defaultNamespace,
		buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}
	for _, apply := range opts {
		apply(s)
	}
	opt := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: s.namespace, Name: name, Help: help, ConstLabels: s.labels}
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		units: prometheus.NewCounterVec(prometheus.CounterOpts(
			opt("units_total", "Source units processed, by final state.")), []string{"state"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   s.namespace,
			Name:        "unit_duration_seconds",
			Help:        "Time spent converting a source unit, by final state.",
			ConstLabels: s.labels,
			Buckets:     s.buckets,
		}, []string{"state"}),
		packages: prometheus.NewCounterVec(prometheus.CounterOpts(
			opt("packages_total", "Package payloads extracted, by outcome.")), []string{"outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts(
			opt("import_bytes_total", "Bytes written to import trees."))),
		warnings: prometheus.NewCounter(prometheus.CounterOpts(
			opt("integrity_warnings_total", "Mismatches between declared and extracted files."))),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts(
			opt("recipe_lookups_total", "Recipe lookups, by match kind.")), []string{"match"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts(
			opt("payload_fetches_total", "Payload opens, by outcome.")), []string{"outcome"}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts(
			opt("payload_bytes_total", "Size of the payloads opened."))),
	}
	m.registry.MustRegister(m.units, m.unitDuration, m.packages, m.bytes, m.warnings, m.lookups, m.fetches, m.fetchBytes)
	return m
}

// Registry holding the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Unit records the final state of a unit, and the time spent on it
func (m *Metrics) Unit(state string, start time.Time) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(state).Inc()
	m.unitDuration.WithLabelValues(state).Observe(time.Since(start).Seconds())
}

// Extracted records a successful extraction
func (m *Metrics) Extracted(size int64, warnings int) {
	if m == nil {
		return
	}
	m.packages.WithLabelValues("extracted").Inc()
	m.bytes.Add(float64(size))
	m.warnings.Add(float64(warnings))
}

// ExtractFailed records a failed extraction
func (m *Metrics) ExtractFailed() {
	if m == nil {
		return
	}
	m.packages.WithLabelValues("failed").Inc()
}

// Lookup records a recipe lookup
func (m *Metrics) Lookup(match string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(match).Inc()
}

// Fetch records the outcome of opening a payload
func (m *Metrics) Fetch(size int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.fetches.WithLabelValues("failed").Inc()
		return
	}
	m.fetches.WithLabelValues("ok").Inc()
	m.fetchBytes.Add(float64(size))
}

// WriteToTextfile exports the metrics in the node_exporter textfile format
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
