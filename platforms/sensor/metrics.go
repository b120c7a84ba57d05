package sensor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

// MetricsCollector mirrors the configured numeric attributes into
// Prometheus, one series per device and attribute.
type MetricsCollector struct {
	platform *Platform

	values  *prometheus.GaugeVec
	sensors prometheus.Gauge
}

func NewMetricsCollector(platform *Platform) *MetricsCollector {
	return &MetricsCollector{
		platform: platform,
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_sensor_attribute_value",
			Help: "Reported value of a bridged numeric attribute",
		}, []string{"device_id", "attribute"}),
		sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vaillant2mqtt_sensor_entities",
			Help: "Number of announced sensor entities",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.values.Describe(ch)
	c.sensors.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.values.Reset()

	count := 0
	c.platform.mu.Lock()
	for deviceID, sensors := range c.platform.sensors {
		count += len(sensors)
		live := c.platform.deps.Hub.Snapshot(deviceID)
		for attr := range sensors {
			if value, ok := hub.AsFloat(live[attr]); ok {
				c.values.With(prometheus.Labels{
					"device_id": deviceID,
					"attribute": attr,
				}).Set(value)
			}
		}
	}
	c.platform.mu.Unlock()
	c.sensors.Set(float64(count))

	c.values.Collect(ch)
	c.sensors.Collect(ch)
}
