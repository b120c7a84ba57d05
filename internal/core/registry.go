package core

import "sync"

// PlatformSummary is the registry listing row.
type PlatformSummary struct {
	PlatformID  string `json:"platform_id"`
	DisplayName string `json:"display_name"`
	Version     string `json:"version"`
	Status      string `json:"status"`
}

// PlatformDescriptor is the full registry record for one platform.
type PlatformDescriptor struct {
	PlatformID    string          `json:"platform_id"`
	DisplayName   string          `json:"display_name"`
	Version       string          `json:"version"`
	Entities      []string        `json:"entities"`
	AgentsMD      string          `json:"agents_md"`
	Status        string          `json:"status"`
	HealthMessage string          `json:"health_message,omitempty"`
	Dashboards    []DashboardLink `json:"dashboards,omitempty"`
}

type DashboardLink struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Registry provides platform discovery to clients.
type Registry struct {
	platforms []Platform
	mu        sync.RWMutex
}

func NewRegistry(platforms []Platform) *Registry {
	return &Registry{platforms: platforms}
}

func (r *Registry) List() []PlatformSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PlatformSummary, 0, len(r.platforms))
	for _, p := range r.platforms {
		manifest := p.Manifest()
		out = append(out, PlatformSummary{
			PlatformID:  manifest.PlatformID,
			DisplayName: manifest.DisplayName,
			Version:     manifest.Version,
			Status:      string(p.Health()),
		})
	}
	return out
}

func (r *Registry) Describe(platformID string) (PlatformDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.platforms {
		manifest := p.Manifest()
		if manifest.PlatformID != platformID {
			continue
		}

		descriptor := PlatformDescriptor{
			PlatformID:    manifest.PlatformID,
			DisplayName:   manifest.DisplayName,
			Version:       manifest.Version,
			Entities:      manifest.Entities,
			AgentsMD:      p.AgentsMD(),
			Status:        string(p.Health()),
			HealthMessage: p.HealthMessage(),
		}

		for _, d := range p.Dashboards() {
			descriptor.Dashboards = append(descriptor.Dashboards, DashboardLink{
				Name: d.Name,
				Path: "/dashboards/" + manifest.PlatformID + "/" + d.Name + ".json",
			})
		}

		return descriptor, true
	}

	return PlatformDescriptor{}, false
}
