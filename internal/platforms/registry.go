package platforms

import (
	"github.com/joshp123/vaillant2mqtt/internal/config"
	"github.com/joshp123/vaillant2mqtt/internal/core"
	"github.com/joshp123/vaillant2mqtt/internal/hub"
	"github.com/joshp123/vaillant2mqtt/internal/mqtt"
)

// Deps carries the shared runtime wiring every platform attaches to.
type Deps struct {
	Hub               *hub.Hub
	Bus               mqtt.Bus
	BaseTopic         string
	DiscoveryPrefix   string
	AvailabilityTopic string
}

// Factory builds a platform instance from the loaded config.
type Factory func(cfg *config.Config, deps Deps) (core.Platform, bool)

var registered []Factory

// Register adds a platform factory to the registry.
func Register(factory Factory) {
	registered = append(registered, factory)
}

// Compiled returns the configured platform instances for this build.
func Compiled(cfg *config.Config, deps Deps) []core.Platform {
	if cfg == nil {
		return nil
	}
	out := make([]core.Platform, 0, len(registered))
	for _, factory := range registered {
		platform, ok := factory(cfg, deps)
		if !ok {
			continue
		}
		out = append(out, platform)
	}
	return out
}
