package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/joshp123/vaillant2mqtt/internal/core"
	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

// RegistryHandler serves platform discovery over JSON.
//
//	GET /api/platforms        -> list
//	GET /api/platforms/<id>   -> descriptor
func RegistryHandler(registry *core.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/platforms")
		id = strings.Trim(id, "/")

		w.Header().Set("Content-Type", "application/json")
		if id == "" {
			_ = json.NewEncoder(w).Encode(registry.List())
			return
		}

		descriptor, ok := registry.Describe(id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(descriptor)
	})
}

type deviceRecord struct {
	ID              string    `json:"id"`
	MAC             string    `json:"mac,omitempty"`
	Model           string    `json:"model,omitempty"`
	SerialNumber    string    `json:"serial_number,omitempty"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	Online          bool      `json:"online"`
	Attrs           hub.Attrs `json:"attrs"`
}

// DevicesHandler serves the hub's device list with live attributes.
func DevicesHandler(h *hub.Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		devices := h.Devices()
		records := make([]deviceRecord, 0, len(devices))
		for _, device := range devices {
			records = append(records, deviceRecord{
				ID:              device.ID,
				MAC:             device.MAC,
				Model:           device.Model,
				SerialNumber:    device.SerialNumber,
				FirmwareVersion: device.FirmwareVersion,
				Online:          device.Online,
				Attrs:           h.Snapshot(device.ID),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	})
}
