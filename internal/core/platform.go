package core

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// HealthStatus represents platform health states for registry reporting.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Dashboard is a Grafana dashboard asset embedded by the platform.
type Dashboard struct {
	Name string
	JSON []byte
}

// Manifest describes a platform for discovery and registry metadata.
type Manifest struct {
	PlatformID  string
	DisplayName string
	Version     string
	Entities    []string
}

// Platform is the compile-time contract for all entity platforms.
type Platform interface {
	ID() string
	Manifest() Manifest
	AgentsMD() string
	Dashboards() []Dashboard
	Collectors() []prometheus.Collector
	Health() HealthStatus
	HealthMessage() string
}

// HTTPRegistrant allows platforms to expose HTTP handlers.
type HTTPRegistrant interface {
	RegisterHTTP(*http.ServeMux)
}
