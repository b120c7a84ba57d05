package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/joshp123/vaillant2mqtt/internal/core"
	"github.com/joshp123/vaillant2mqtt/internal/hub"
	"github.com/prometheus/client_golang/prometheus"
)

type stubPlatform struct{ id string }

func (s stubPlatform) ID() string { return s.id }

func (s stubPlatform) Manifest() core.Manifest {
	return core.Manifest{
		PlatformID:  s.id,
		DisplayName: "Demo",
		Version:     "0.1.0",
		Entities:    []string{"climate"},
	}
}

func (s stubPlatform) AgentsMD() string                   { return "demo" }
func (s stubPlatform) Dashboards() []core.Dashboard       { return nil }
func (s stubPlatform) Collectors() []prometheus.Collector { return nil }
func (s stubPlatform) Health() core.HealthStatus          { return core.HealthHealthy }
func (s stubPlatform) HealthMessage() string              { return "" }

func TestRegistryHandlerList(t *testing.T) {
	registry := core.NewRegistry([]core.Platform{stubPlatform{id: "climate"}})
	handler := RegistryHandler(registry)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/platforms", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var summaries []core.PlatformSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(summaries) != 1 || summaries[0].PlatformID != "climate" {
		t.Fatalf("unexpected list: %+v", summaries)
	}
}

func TestRegistryHandlerDescribe(t *testing.T) {
	registry := core.NewRegistry([]core.Platform{stubPlatform{id: "climate"}})
	handler := RegistryHandler(registry)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/platforms/climate", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var descriptor core.PlatformDescriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &descriptor); err != nil {
		t.Fatalf("decode descriptor: %v", err)
	}
	if descriptor.PlatformID != "climate" || descriptor.AgentsMD != "demo" {
		t.Fatalf("unexpected descriptor: %+v", descriptor)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/platforms/missing", nil))
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDevicesHandler(t *testing.T) {
	h := hub.New(nil)
	h.UpsertDevice(hub.Device{ID: "dev1", Model: "VR_921", Online: true})
	h.ApplyReport("dev1", hub.Attrs{"Tank_temperature": 48.0})

	rec := httptest.NewRecorder()
	DevicesHandler(h).ServeHTTP(rec, httptest.NewRequest("GET", "/api/devices", nil))

	var records []deviceRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if len(records) != 1 || records[0].ID != "dev1" {
		t.Fatalf("unexpected devices: %+v", records)
	}
	if records[0].Attrs["Tank_temperature"] != 48.0 {
		t.Fatalf("unexpected attrs: %+v", records[0].Attrs)
	}
}
