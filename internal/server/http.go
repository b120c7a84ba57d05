package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshp123/vaillant2mqtt/internal/core"
	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

// MuxConfig collects everything the HTTP surface exposes.
type MuxConfig struct {
	Registry   *core.Registry
	Hub        *hub.Hub
	Metrics    *prometheus.Registry
	Dashboards map[string][]byte
	Platforms  []core.Platform
}

// NewMux assembles the daemon's HTTP routes: liveness, Prometheus
// metrics, dashboard JSON, the platform and device APIs, and any
// platform-specific endpoints.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	mux.Handle("/dashboards/", dashboardsHandler(cfg.Dashboards))
	mux.Handle("/api/platforms", RegistryHandler(cfg.Registry))
	mux.Handle("/api/platforms/", RegistryHandler(cfg.Registry))
	mux.Handle("/api/devices", DevicesHandler(cfg.Hub))

	for _, platform := range cfg.Platforms {
		if registrant, ok := platform.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(mux)
		}
	}

	return mux
}

func dashboardsHandler(dashboards map[string][]byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := dashboards[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
}

// ListenAndServe starts the HTTP surface on addr and blocks.
func ListenAndServe(addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	return srv.ListenAndServe()
}
