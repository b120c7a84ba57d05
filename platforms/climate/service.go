package climate

import (
	"encoding/json"
	"net/http"
)

type entityState struct {
	DeviceID    string  `json:"device_id"`
	Mode        string  `json:"mode"`
	Action      string  `json:"action"`
	Temperature float64 `json:"temperature"`
	MinTemp     float64 `json:"min_temp"`
	MaxTemp     float64 `json:"max_temp"`
}

// RegisterHTTP exposes the created entities for inspection.
func (p *Platform) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/api/climate", func(w http.ResponseWriter, r *http.Request) {
		states := make([]entityState, 0)
		for _, device := range p.deps.Hub.Devices() {
			entity, ok := p.Entity(device.ID)
			if !ok {
				continue
			}
			live := p.deps.Hub.Snapshot(device.ID)
			mode, action := entity.resolveModeAction(live)
			states = append(states, entityState{
				DeviceID:    device.ID,
				Mode:        mode,
				Action:      action,
				Temperature: entity.cache.LookupFloat(live, attrFlowSetpoint, defaultFlowSetpoint),
				MinTemp:     entity.cache.LookupFloat(live, attrLowerCHLimit, defaultLowerCHLimit),
				MaxTemp:     entity.cache.LookupFloat(live, attrUpperCHLimit, defaultUpperCHLimit),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(states)
	})
}
