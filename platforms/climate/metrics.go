package climate

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

// MetricsCollector exposes heating circuit state per device.
type MetricsCollector struct {
	platform *Platform

	heatingEnabled *prometheus.GaugeVec
	flowSetpoint   *prometheus.GaugeVec
	lowerLimit     *prometheus.GaugeVec
	upperLimit     *prometheus.GaugeVec
	entities       prometheus.Gauge
}

func NewMetricsCollector(platform *Platform) *MetricsCollector {
	labels := []string{"device_id"}
	return &MetricsCollector{
		platform: platform,
		heatingEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_climate_heating_enabled_bool",
			Help: "Central heating enabled per device (1=on, 0=off)",
		}, labels),
		flowSetpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_climate_flow_setpoint_celsius",
			Help: "Flow temperature setpoint per device",
		}, labels),
		lowerLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_climate_setpoint_lower_limit_celsius",
			Help: "Lower bound of the CH setpoint range per device",
		}, labels),
		upperLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_climate_setpoint_upper_limit_celsius",
			Help: "Upper bound of the CH setpoint range per device",
		}, labels),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_climate_entities",
			Help: "Number of created climate entities",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.heatingEnabled.Describe(ch)
	c.flowSetpoint.Describe(ch)
	c.lowerLimit.Describe(ch)
	c.upperLimit.Describe(ch)
	c.entities.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.heatingEnabled.Reset()
	c.flowSetpoint.Reset()
	c.lowerLimit.Reset()
	c.upperLimit.Reset()

	count := 0
	for _, device := range c.platform.deps.Hub.Devices() {
		if _, ok := c.platform.Entity(device.ID); !ok {
			continue
		}
		count++
		labels := prometheus.Labels{"device_id": device.ID}
		live := c.platform.deps.Hub.Snapshot(device.ID)
		if enable, ok := hub.AsEnable(live[attrHeatingEnable]); ok {
			c.heatingEnabled.With(labels).Set(float64(enable))
		}
		if value, ok := hub.AsFloat(live[attrFlowSetpoint]); ok {
			c.flowSetpoint.With(labels).Set(value)
		}
		if value, ok := hub.AsFloat(live[attrLowerCHLimit]); ok {
			c.lowerLimit.With(labels).Set(value)
		}
		if value, ok := hub.AsFloat(live[attrUpperCHLimit]); ok {
			c.upperLimit.With(labels).Set(value)
		}
	}
	c.entities.Set(float64(count))

	c.heatingEnabled.Collect(ch)
	c.flowSetpoint.Collect(ch)
	c.lowerLimit.Collect(ch)
	c.upperLimit.Collect(ch)
	c.entities.Collect(ch)
}
