package climate

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

// Platform implements the vaillant2mqtt platform contract. It watches
// the hub for device reports and creates one climate entity per device
// that reports Heating_Enable.
type Platform struct {
	deps Deps

	mu       sync.Mutex
	entities map[string]*Entity

	health        core.HealthStatus
	healthMessage string
}

func NewPlatform(deps Deps) *Platform {
	p := &Platform{
		deps:     deps,
		entities: make(map[string]*Entity),
		health:   core.HealthHealthy,
	}
	deps.Hub.Subscribe(p.handleEvent)
	return p
}

func (p *Platform) handleEvent(event hub.Event) {
	switch event.Kind {
	case hub.DeviceConnected:
		entity, created := p.ensureEntity(event.DeviceID, event.Attrs)
		if entity == nil {
			return
		}
		if created {
			if err := entity.Announce(p.deps.DiscoveryPrefix, p.deps.AvailabilityTopic); err != nil {
				p.mu.Lock()
				p.health = core.HealthDegraded
				p.healthMessage = err.Error()
				p.mu.Unlock()
				return
			}
		}
		entity.HandleReport(event.Attrs)
	case hub.DeviceUpdated:
		p.mu.Lock()
		entity := p.entities[event.DeviceID]
		p.mu.Unlock()
		if entity != nil {
			entity.HandleReport(event.Attrs)
		}
	}
}

// ensureEntity creates the entity on the first connected snapshot
// that carries Heating_Enable. Devices without it are skipped.
func (p *Platform) ensureEntity(deviceID string, snapshot hub.Attrs) (*Entity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entity, ok := p.entities[deviceID]; ok {
		return entity, false
	}
	if _, ok := snapshot[attrHeatingEnable]; !ok {
		return nil, false
	}

	entity := NewEntity(p.deps.Hub, p.deps.Bus, p.deps.BaseTopic, deviceID)
	p.entities[deviceID] = entity
	return entity, true
}

// Entity returns the created entity for a device, if any.
func (p *Platform) Entity(deviceID string) (*Entity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entity, ok := p.entities[deviceID]
	return entity, ok
}

func (p *Platform) ID() string {
	return "climate"
}

func (p *Platform) Manifest() core.Manifest {
	return core.Manifest{
		PlatformID:  "climate",
		DisplayName: "Climate",
		Version:     "0.1.0",
		Entities:    []string{"climate"},
	}
}

func (p *Platform) AgentsMD() string {
	return agentsMD
}

func (p *Platform) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "climate-overview", JSON: dashboardJSON}}
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
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthMessage
}
