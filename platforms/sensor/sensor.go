package sensor

import (
	"strconv"
	"strings"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
	"github.com/joshp123/vaillant2mqtt/internal/mqtt"
)

// meta maps a cloud attribute name to Home Assistant sensor metadata.
type meta struct {
	DeviceClass string
	StateClass  string
	Unit        string
}

// knownAttrs carries metadata for the attributes the vSMART gateway is
// known to report. Attributes not listed fall back to classify.
var knownAttrs = map[string]meta{
	"Tank_temperature":     {DeviceClass: "temperature", StateClass: "measurement", Unit: "°C"},
	"Room_Temperature":     {DeviceClass: "temperature", StateClass: "measurement", Unit: "°C"},
	"Outdoor_Temperature":  {DeviceClass: "temperature", StateClass: "measurement", Unit: "°C"},
	"Flow_temperature":     {DeviceClass: "temperature", StateClass: "measurement", Unit: "°C"},
	"return_temperature":   {DeviceClass: "temperature", StateClass: "measurement", Unit: "°C"},
	"Current_DHW_Setpoint": {DeviceClass: "temperature", StateClass: "measurement", Unit: "°C"},
	"Water_Pressure":       {DeviceClass: "pressure", StateClass: "measurement", Unit: "bar"},
	"Heating_Curve":        {StateClass: "measurement"},
	"Circulation_Enable":   {},
}

// classify guesses metadata for attributes outside knownAttrs.
func classify(attr string) meta {
	lower := strings.ToLower(attr)
	switch {
	case strings.Contains(lower, "temperature"), strings.Contains(lower, "setpoint"):
		return meta{DeviceClass: "temperature", StateClass: "measurement", Unit: "°C"}
	case strings.Contains(lower, "pressure"):
		return meta{DeviceClass: "pressure", StateClass: "measurement", Unit: "bar"}
	default:
		return meta{}
	}
}

func metaFor(attr string) meta {
	if m, ok := knownAttrs[attr]; ok {
		return m
	}
	return classify(attr)
}

// Sensor publishes one reported attribute as a Home Assistant sensor.
type Sensor struct {
	bus        mqtt.Bus
	stateTopic string
	attr       string
}

func newSensor(bus mqtt.Bus, baseTopic, deviceID, attr string) *Sensor {
	topics := mqtt.NewTopics(baseTopic, deviceID, "sensor")
	return &Sensor{
		bus:        bus,
		stateTopic: topics.State(objectID(attr)),
		attr:       attr,
	}
}

func (s *Sensor) announce(discoveryPrefix, availabilityTopic, deviceID string, device mqtt.DeviceInfo) error {
	m := metaFor(s.attr)
	cfg := mqtt.SensorConfig{
		Name:              strings.ReplaceAll(s.attr, "_", " "),
		UniqueID:          deviceID + "_" + objectID(s.attr),
		StateTopic:        s.stateTopic,
		UnitOfMeasurement: m.Unit,
		DeviceClass:       m.DeviceClass,
		StateClass:        m.StateClass,
		AvailabilityTopic: availabilityTopic,
		Device:            device,
	}
	return mqtt.PublishDiscovery(s.bus, discoveryPrefix, "sensor", deviceID, objectID(s.attr), cfg)
}

func (s *Sensor) publish(value any) {
	_ = s.bus.Publish(s.stateTopic, true, []byte(formatValue(value)))
}

func formatValue(value any) string {
	if f, ok := hub.AsFloat(value); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if s, ok := value.(string); ok {
		return s
	}
	if b, ok := value.(bool); ok {
		if b {
			return "1"
		}
		return "0"
	}
	return ""
}

func objectID(attr string) string {
	return strings.ToLower(attr)
}
