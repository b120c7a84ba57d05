package auth

import (
	"time"

	"github.com/joshp123/vaillant2mqtt/internal/config"
)

const DefaultRefreshInterval = 10 * time.Minute

func RefreshInterval(cfg config.AuthConfig) time.Duration {
	if cfg.RefreshEnabled != nil && !*cfg.RefreshEnabled {
		return 0
	}
	if cfg.RefreshIntervalSeconds > 0 {
		return time.Duration(cfg.RefreshIntervalSeconds) * time.Second
	}
	return DefaultRefreshInterval
}
