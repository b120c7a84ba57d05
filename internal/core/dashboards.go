package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// DashboardsMap materializes dashboard content to URL paths.
func DashboardsMap(platforms []Platform) map[string][]byte {
	result := make(map[string][]byte)
	for _, platform := range platforms {
		manifest := platform.Manifest()
		for _, dash := range platform.Dashboards() {
			path := "/dashboards/" + manifest.PlatformID + "/" + dash.Name + ".json"
			result[path] = dash.JSON
		}
	}
	return result
}

// WriteDashboards writes dashboards to disk for Grafana provisioning.
func WriteDashboards(dir string, platforms []Platform) error {
	if dir == "" {
		return nil
	}

	for _, platform := range platforms {
		manifest := platform.Manifest()
		for _, dash := range platform.Dashboards() {
			platformDir := filepath.Join(dir, manifest.PlatformID)
			if err := os.MkdirAll(platformDir, 0o755); err != nil {
				return fmt.Errorf("create dashboard dir: %w", err)
			}
			path := filepath.Join(platformDir, dash.Name+".json")
			if err := os.WriteFile(path, dash.JSON, 0o644); err != nil {
				return fmt.Errorf("write dashboard %s: %w", path, err)
			}
		}
	}

	return nil
}
