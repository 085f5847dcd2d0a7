package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
// An empty path is a no-op.
func WriteTextfile(reg prometheus.Gatherer, path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, reg)
}
