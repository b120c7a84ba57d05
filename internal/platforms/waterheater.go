package platforms

import (
	"github.com/joshp123/vaillant2mqtt/internal/config"
	"github.com/joshp123/vaillant2mqtt/internal/core"
	"github.com/joshp123/vaillant2mqtt/platforms/waterheater"
)

func init() {
	Register(func(cfg *config.Config, deps Deps) (core.Platform, bool) {
		if cfg.Platforms.WaterHeater == nil {
			return nil, false
		}
		return waterheater.NewPlatform(waterheater.Deps{
			Hub:               deps.Hub,
			Bus:               deps.Bus,
			BaseTopic:         deps.BaseTopic,
			DiscoveryPrefix:   deps.DiscoveryPrefix,
			AvailabilityTopic: deps.AvailabilityTopic,
		}), true
	})
}
