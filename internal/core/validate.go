package core

import (
	"fmt"
	"regexp"
)

var platformIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)

// ValidatePlatforms enforces basic platform contract invariants at startup.
func ValidatePlatforms(platforms []Platform) error {
	seen := make(map[string]bool)
	for _, platform := range platforms {
		id := platform.ID()
		manifest := platform.Manifest()
		if id == "" {
			return fmt.Errorf("platform id is empty")
		}
		if !platformIDPattern.MatchString(id) {
			return fmt.Errorf("platform id %q does not match %s", id, platformIDPattern.String())
		}
		if manifest.PlatformID != id {
			return fmt.Errorf("platform id mismatch: id=%q manifest=%q", id, manifest.PlatformID)
		}
		if seen[id] {
			return fmt.Errorf("duplicate platform id: %s", id)
		}
		seen[id] = true
	}
	return nil
}
