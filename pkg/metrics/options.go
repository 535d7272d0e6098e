package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Option defines some options to the metrics initialization
type Option func(*settings)

type settings struct {
	namespace string
	labels    prometheus.Labels
	buckets   []float64
}

// WithNamespace prefixes all metric names
func WithNamespace(namespace string) Option {
	return func(s *settings) {
		s.namespace = namespace
	}
}

// WithLabels adds constant labels to all metrics, e.g. the run id
func WithLabels(labels map[string]string) Option {
	return func(s *settings) {
		s.labels = labels
	}
}

// WithBuckets sets the buckets of the unit duration histogram, in seconds
func WithBuckets(buckets []float64) Option {
	return func(s *settings) {
		if len(buckets) > 0 {
			s.buckets = buckets
		}
	}
}
