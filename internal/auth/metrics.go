package auth

import "github.com/prometheus/client_golang/prometheus"

var (
	refreshSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaillant2mqtt_auth_refresh_success_total",
			Help: "Successful token refreshes",
		},
		[]string{"provider"},
	)
	refreshFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaillant2mqtt_auth_refresh_failure_total",
			Help: "Failed token refreshes",
		},
		[]string{"provider"},
	)
	relogin = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaillant2mqtt_auth_relogin_total",
			Help: "Password logins performed after a rejected refresh grant",
		},
		[]string{"provider"},
	)
	tokenValid = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vaillant2mqtt_auth_token_valid",
			Help: "Access token validity (1=valid, 0=invalid)",
		},
		[]string{"provider"},
	)
	remotePersistOK = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vaillant2mqtt_auth_remote_persist_ok",
			Help: "Remote blob persistence health (1=ok, 0=error)",
		},
		[]string{"provider"},
	)
	scopeMismatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaillant2mqtt_auth_scope_mismatch_total",
			Help: "Scope mismatches between declaration and state",
		},
		[]string{"provider"},
	)
)

// MetricsCollectors returns collectors for the shared auth module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		refreshSuccess,
		refreshFailure,
		relogin,
		tokenValid,
		remotePersistOK,
		scopeMismatch,
	}
}
