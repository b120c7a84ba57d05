package waterheater

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

type fakeBus struct {
	mu       sync.Mutex
	messages map[string][]string
	subs     map[string][]func([]byte)
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		messages: make(map[string][]string),
		subs:     make(map[string][]func([]byte)),
	}
}

func (b *fakeBus) Publish(topic string, retained bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[topic] = append(b.messages[topic], string(payload))
	return nil
}

func (b *fakeBus) Subscribe(topic string, cb func([]byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], cb)
	return func() {}, nil
}

func (b *fakeBus) deliver(topic string, payload string) {
	b.mu.Lock()
	callbacks := append([]func([]byte){}, b.subs[topic]...)
	b.mu.Unlock()
	for _, cb := range callbacks {
		cb([]byte(payload))
	}
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

type fakeController struct {
	mu       sync.Mutex
	commands []hub.Attrs
	fail     bool
}

func (c *fakeController) ControlDevice(_ context.Context, _ string, attrs hub.Attrs) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cloud rejected command")
	}
	c.commands = append(c.commands, attrs.Clone())
	return nil
}

func setupPlatform(t *testing.T) (*Platform, *hub.Hub, *fakeBus, *fakeController) {
	t.Helper()
	controller := &fakeController{}
	h := hub.New(controller)
	bus := newFakeBus()
	platform := NewPlatform(Deps{
		Hub:               h,
		Bus:               bus,
		BaseTopic:         "vaillant2mqtt",
		DiscoveryPrefix:   "homeassistant",
		AvailabilityTopic: "vaillant2mqtt/availability",
	})
	return platform, h, bus, controller
}

func TestEntityCreatedOnDHWSetpoint(t *testing.T) {
	platform, h, bus, _ := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{
		"DHW_setpoint":                 48.0,
		"WarmStar_Tank_Loading_Enable": 1.0,
	})

	if _, ok := platform.Entity("dev1"); !ok {
		t.Fatalf("expected water heater entity for dev1")
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/water_heater/mode/state"); got != "on" {
		t.Fatalf("mode = %q, want on", got)
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/water_heater/temperature/state"); got != "48" {
		t.Fatalf("temperature = %q, want 48", got)
	}
}

func TestEntitySkippedWithoutDHWSetpoint(t *testing.T) {
	platform, h, bus, _ := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"Heating_Enable": 1.0})

	if _, ok := platform.Entity("dev1"); ok {
		t.Fatalf("expected no water heater entity without DHW_setpoint")
	}
	if _, ok := bus.last("homeassistant/water_heater/dev1/water_heater/config"); ok {
		t.Fatalf("expected no discovery config without DHW_setpoint")
	}
}

func TestUnknownAttributesStayUnpublished(t *testing.T) {
	_, h, bus, _ := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"DHW_setpoint": 48.0})

	if _, ok := bus.last("vaillant2mqtt/dev1/water_heater/mode/state"); ok {
		t.Fatalf("expected no mode state without WarmStar_Tank_Loading_Enable")
	}
	if _, ok := bus.last("vaillant2mqtt/dev1/water_heater/min_temp/state"); ok {
		t.Fatalf("expected no min_temp state without reported bound")
	}

	payload, _ := bus.last("homeassistant/water_heater/dev1/water_heater/config")
	if strings.Contains(payload, "min_temp") || strings.Contains(payload, "max_temp") {
		t.Fatalf("expected discovery without bounds, got %s", payload)
	}
}

func TestOperationModeCommand(t *testing.T) {
	_, h, bus, controller := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{
		"DHW_setpoint":                 48.0,
		"WarmStar_Tank_Loading_Enable": 1.0,
	})

	bus.deliver("vaillant2mqtt/dev1/water_heater/mode/set", "off")

	controller.mu.Lock()
	commands := controller.commands
	controller.mu.Unlock()
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	if enable, _ := hub.AsEnable(commands[0]["WarmStar_Tank_Loading_Enable"]); enable != 0 {
		t.Fatalf("expected tank loading off command, got %v", commands[0])
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/water_heater/mode/state"); got != "off" {
		t.Fatalf("mode = %q, want off", got)
	}
}

func TestTemperatureCommandRoundsTrip(t *testing.T) {
	_, h, bus, controller := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"DHW_setpoint": 48.0})

	bus.deliver("vaillant2mqtt/dev1/water_heater/temperature/set", "51.5")

	controller.mu.Lock()
	commands := controller.commands
	controller.mu.Unlock()
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	if value, _ := hub.AsFloat(commands[0]["DHW_setpoint"]); value != 51.5 {
		t.Fatalf("setpoint command = %v, want 51.5", commands[0])
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/water_heater/temperature/state"); got != "51.5" {
		t.Fatalf("temperature = %q, want 51.5", got)
	}
}

func TestFailedCommandKeepsState(t *testing.T) {
	_, h, bus, controller := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{
		"DHW_setpoint":                 48.0,
		"WarmStar_Tank_Loading_Enable": 1.0,
	})
	controller.fail = true

	bus.deliver("vaillant2mqtt/dev1/water_heater/temperature/set", "60")

	if got, _ := bus.last("vaillant2mqtt/dev1/water_heater/temperature/state"); got != "48" {
		t.Fatalf("temperature = %q, want unchanged 48", got)
	}
}

func TestReverseSyncUpdatesPresentKeysOnly(t *testing.T) {
	_, h, bus, _ := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{
		"DHW_setpoint":                 48.0,
		"WarmStar_Tank_Loading_Enable": 1.0,
	})

	h.ApplyReport("dev1", hub.Attrs{"WarmStar_Tank_Loading_Enable": 0.0})

	if got, _ := bus.last("vaillant2mqtt/dev1/water_heater/mode/state"); got != "off" {
		t.Fatalf("mode = %q, want off after push", got)
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/water_heater/temperature/state"); got != "48" {
		t.Fatalf("temperature = %q, want cached 48", got)
	}
}
