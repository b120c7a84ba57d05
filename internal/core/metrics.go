package core

import "github.com/prometheus/client_golang/prometheus"

// MetricsRegistry builds a registry from platform collectors.
func MetricsRegistry(platforms []Platform) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, platform := range platforms {
		for _, collector := range platform.Collectors() {
			registry.MustRegister(collector)
		}
	}

	return registry
}
