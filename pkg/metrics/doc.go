// Package metrics collects prometheus metrics about a conversion run.
//
// Metrics are registered on a private registry, so that several runs may live in the same
// process. They may be exported in the node_exporter textfile format at the end of a run.
//
// All methods are safe on a nil *Metrics, which collects nothing.
package metrics
