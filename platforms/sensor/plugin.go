package sensor

import (
	_ "embed"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/vaillant2mqtt/internal/core"
	"github.com/joshp123/vaillant2mqtt/internal/hub"
	"github.com/joshp123/vaillant2mqtt/internal/mqtt"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

// Deps is the runtime wiring the platform attaches to.
type Deps struct {
	Hub               *hub.Hub
	Bus               mqtt.Bus
	BaseTopic         string
	DiscoveryPrefix   string
	AvailabilityTopic string
}

// Platform publishes configured device attributes as Home Assistant
// sensors. A sensor is announced the first time its attribute shows up
// in a report; attributes the device never reports stay silent.
type Platform struct {
	deps  Deps
	attrs []string

	mu      sync.Mutex
	sensors map[string]map[string]*Sensor

	health core.HealthStatus
}

func NewPlatform(deps Deps, attrs []string) *Platform {
	p := &Platform{
		deps:    deps,
		attrs:   attrs,
		sensors: make(map[string]map[string]*Sensor),
		health:  core.HealthHealthy,
	}
	deps.Hub.Subscribe(p.handleEvent)
	return p
}

func (p *Platform) handleEvent(event hub.Event) {
	for _, attr := range p.attrs {
		value, ok := event.Attrs[attr]
		if !ok || value == nil {
			continue
		}
		sensor := p.ensureSensor(event.DeviceID, attr)
		if sensor == nil {
			continue
		}
		sensor.publish(value)
	}
}

func (p *Platform) ensureSensor(deviceID, attr string) *Sensor {
	p.mu.Lock()
	if p.sensors[deviceID] == nil {
		p.sensors[deviceID] = make(map[string]*Sensor)
	}
	if sensor, ok := p.sensors[deviceID][attr]; ok {
		p.mu.Unlock()
		return sensor
	}
	sensor := newSensor(p.deps.Bus, p.deps.BaseTopic, deviceID, attr)
	p.sensors[deviceID][attr] = sensor
	p.mu.Unlock()

	device, _ := p.deps.Hub.Device(deviceID)
	if err := sensor.announce(p.deps.DiscoveryPrefix, p.deps.AvailabilityTopic, deviceID, deviceInfo(device)); err != nil {
		p.mu.Lock()
		p.health = core.HealthDegraded
		p.mu.Unlock()
	}
	return sensor
}

func (p *Platform) ID() string {
	return "sensor"
}

func (p *Platform) Manifest() core.Manifest {
	return core.Manifest{
		PlatformID:  "sensor",
		DisplayName: "Sensors",
		Version:     "0.1.0",
		Entities:    []string{"sensor"},
	}
}

func (p *Platform) AgentsMD() string {
	return agentsMD
}

func (p *Platform) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "sensors-overview", JSON: dashboardJSON}}
}

func (p *Platform) Collectors() []prometheus.Collector {
	return []prometheus.Collector{NewMetricsCollector(p)}
}

func (p *Platform) Health() core.HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health
}

func (p *Platform) HealthMessage() string {
	return ""
}

func deviceInfo(device hub.Device) mqtt.DeviceInfo {
	name := device.Model
	if name == "" {
		name = device.ID
	}
	return mqtt.DeviceInfo{
		Identifiers:  []string{device.ID},
		Name:         name,
		Manufacturer: "Vaillant",
		Model:        device.Model,
		SWVersion:    device.FirmwareVersion,
	}
}
