package waterheater

import (
	"encoding/json"
	"net/http"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

type entityState struct {
	DeviceID    string   `json:"device_id"`
	Operation   string   `json:"operation,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MinTemp     *float64 `json:"min_temp,omitempty"`
	MaxTemp     *float64 `json:"max_temp,omitempty"`
}

// RegisterHTTP exposes the created entities for inspection.
func (p *Platform) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/api/water_heater", func(w http.ResponseWriter, r *http.Request) {
		states := make([]entityState, 0)
		for _, device := range p.deps.Hub.Devices() {
			entity, ok := p.Entity(device.ID)
			if !ok {
				continue
			}
			live := p.deps.Hub.Snapshot(device.ID)
			state := entityState{DeviceID: device.ID}
			if value, ok := entity.cache.Lookup(live, attrTankLoadingEnable); ok {
				if enable, ok := hub.AsEnable(value); ok {
					state.Operation = operationOff
					if enable == 1 {
						state.Operation = operationOn
					}
				}
			}
			if value, ok := entity.lookupFloat(live, attrDHWSetpoint); ok {
				state.Temperature = &value
			}
			if value, ok := entity.lookupFloat(live, attrLowerDHWLimit); ok {
				state.MinTemp = &value
			}
			if value, ok := entity.lookupFloat(live, attrUpperDHWLimit); ok {
				state.MaxTemp = &value
			}
			states = append(states, state)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(states)
	})
}
