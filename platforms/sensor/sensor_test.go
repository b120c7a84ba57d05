package sensor

import (
	"strings"
	"sync"
	"testing"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

type fakeBus struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newFakeBus() *fakeBus {
	return &fakeBus{messages: make(map[string][]string)}
}

func (b *fakeBus) Publish(topic string, retained bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[topic] = append(b.messages[topic], string(payload))
	return nil
}

func (b *fakeBus) Subscribe(topic string, cb func([]byte)) (func(), error) {
	return func() {}, nil
}

func (b *fakeBus) last(topic string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	history := b.messages[topic]
	if len(history) == 0 {
		return "", false
	}
	return history[len(history)-1], true
}

func setupPlatform(attrs []string) (*Platform, *hub.Hub, *fakeBus) {
	h := hub.New(nil)
	bus := newFakeBus()
	platform := NewPlatform(Deps{
		Hub:               h,
		Bus:               bus,
		BaseTopic:         "vaillant2mqtt",
		DiscoveryPrefix:   "homeassistant",
		AvailabilityTopic: "vaillant2mqtt/availability",
	}, attrs)
	return platform, h, bus
}

func TestSensorAnnouncedOnFirstReport(t *testing.T) {
	_, h, bus := setupPlatform([]string{"Tank_temperature"})

	h.ApplyReport("dev1", hub.Attrs{"Tank_temperature": 48.5})

	payload, ok := bus.last("homeassistant/sensor/dev1/tank_temperature/config")
	if !ok {
		t.Fatalf("expected discovery config")
	}
	for _, want := range []string{
		`"unique_id":"dev1_tank_temperature"`,
		`"device_class":"temperature"`,
		`"unit_of_measurement":"°C"`,
	} {
		if !strings.Contains(payload, want) {
			t.Fatalf("discovery payload missing %s: %s", want, payload)
		}
	}

	if got, _ := bus.last("vaillant2mqtt/dev1/sensor/tank_temperature/state"); got != "48.5" {
		t.Fatalf("state = %q, want 48.5", got)
	}
}

func TestUnconfiguredAttributesIgnored(t *testing.T) {
	_, h, bus := setupPlatform([]string{"Tank_temperature"})

	h.ApplyReport("dev1", hub.Attrs{"Water_Pressure": 1.6})

	if _, ok := bus.last("vaillant2mqtt/dev1/sensor/water_pressure/state"); ok {
		t.Fatalf("expected unconfigured attribute to be ignored")
	}
}

func TestSensorUpdatesOnPush(t *testing.T) {
	_, h, bus := setupPlatform([]string{"Water_Pressure"})

	h.ApplyReport("dev1", hub.Attrs{"Water_Pressure": 1.6})
	h.ApplyReport("dev1", hub.Attrs{"Water_Pressure": 1.4})

	if got, _ := bus.last("vaillant2mqtt/dev1/sensor/water_pressure/state"); got != "1.4" {
		t.Fatalf("state = %q, want 1.4", got)
	}
	// Only the first report announces.
	bus.mu.Lock()
	configs := len(bus.messages["homeassistant/sensor/dev1/water_pressure/config"])
	bus.mu.Unlock()
	if configs != 1 {
		t.Fatalf("expected 1 discovery publish, got %d", configs)
	}
}

func TestClassifyFallback(t *testing.T) {
	m := classify("Some_Custom_Temperature")
	if m.DeviceClass != "temperature" || m.Unit != "°C" {
		t.Fatalf("unexpected classification: %+v", m)
	}
	m = classify("Mode_Bits")
	if m.DeviceClass != "" || m.Unit != "" {
		t.Fatalf("expected empty classification, got %+v", m)
	}
}
