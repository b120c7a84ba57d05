package waterheater

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

// MetricsCollector exposes domestic hot water state per device.
type MetricsCollector struct {
	platform *Platform

	tankLoading *prometheus.GaugeVec
	dhwSetpoint *prometheus.GaugeVec
	lowerLimit  *prometheus.GaugeVec
	upperLimit  *prometheus.GaugeVec
	entities    prometheus.Gauge
}

func NewMetricsCollector(platform *Platform) *MetricsCollector {
	labels := []string{"device_id"}
	return &MetricsCollector{
		platform: platform,
		tankLoading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_water_heater_tank_loading_enabled_bool",
			Help: "Tank loading enabled per device (1=on, 0=off)",
		}, labels),
		dhwSetpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_water_heater_dhw_setpoint_celsius",
			Help: "Domestic hot water setpoint per device",
		}, labels),
		lowerLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_water_heater_setpoint_lower_limit_celsius",
			Help: "Lower bound of the DHW setpoint range per device",
		}, labels),
		upperLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_water_heater_setpoint_upper_limit_celsius",
			Help: "Upper bound of the DHW setpoint range per device",
		}, labels),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_water_heater_entities",
			Help: "Number of created water heater entities",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.tankLoading.Describe(ch)
	c.dhwSetpoint.Describe(ch)
	c.lowerLimit.Describe(ch)
	c.upperLimit.Describe(ch)
	c.entities.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.tankLoading.Reset()
	c.dhwSetpoint.Reset()
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
		if enable, ok := hub.AsEnable(live[attrTankLoadingEnable]); ok {
			c.tankLoading.With(labels).Set(float64(enable))
		}
		if value, ok := hub.AsFloat(live[attrDHWSetpoint]); ok {
			c.dhwSetpoint.With(labels).Set(value)
		}
		if value, ok := hub.AsFloat(live[attrLowerDHWLimit]); ok {
			c.lowerLimit.With(labels).Set(value)
		}
		if value, ok := hub.AsFloat(live[attrUpperDHWLimit]); ok {
			c.upperLimit.With(labels).Set(value)
		}
	}
	c.entities.Set(float64(count))

	c.tankLoading.Collect(ch)
	c.dhwSetpoint.Collect(ch)
	c.lowerLimit.Collect(ch)
	c.upperLimit.Collect(ch)
	c.entities.Collect(ch)
}
