package climate

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

func TestEntityCreatedOnHeatingEnable(t *testing.T) {
	platform, h, bus, _ := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"Heating_Enable": 1.0, "Flow_Temperature_Setpoint": 42.0})

	if _, ok := platform.Entity("dev1"); !ok {
		t.Fatalf("expected climate entity for dev1")
	}
	if _, ok := bus.last("homeassistant/climate/dev1/climate/config"); !ok {
		t.Fatalf("expected discovery config to be published")
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/climate/mode/state"); got != "heat" {
		t.Fatalf("mode = %q, want heat", got)
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/climate/action/state"); got != "heating" {
		t.Fatalf("action = %q, want heating", got)
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/climate/temperature/state"); got != "42" {
		t.Fatalf("temperature = %q, want 42", got)
	}
}

func TestEntitySkippedWithoutHeatingEnable(t *testing.T) {
	platform, h, bus, _ := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"Tank_temperature": 48.0})

	if _, ok := platform.Entity("dev1"); ok {
		t.Fatalf("expected no climate entity without Heating_Enable")
	}
	if _, ok := bus.last("homeassistant/climate/dev1/climate/config"); ok {
		t.Fatalf("expected no discovery config without Heating_Enable")
	}
}

func TestModeCommandControlsDevice(t *testing.T) {
	_, h, bus, controller := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"Heating_Enable": 1.0})

	bus.deliver("vaillant2mqtt/dev1/climate/mode/set", "off")

	controller.mu.Lock()
	commands := controller.commands
	controller.mu.Unlock()
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	if enable, _ := hub.AsEnable(commands[0]["Heating_Enable"]); enable != 0 {
		t.Fatalf("expected Heating_Enable off command, got %v", commands[0])
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/climate/mode/state"); got != "off" {
		t.Fatalf("mode = %q, want off", got)
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/climate/action/state"); got != "off" {
		t.Fatalf("action = %q, want off", got)
	}
}

func TestFailedCommandLeavesStateUntouched(t *testing.T) {
	_, h, bus, controller := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"Heating_Enable": 1.0})
	controller.fail = true

	bus.deliver("vaillant2mqtt/dev1/climate/mode/set", "off")

	if got, _ := bus.last("vaillant2mqtt/dev1/climate/mode/state"); got != "heat" {
		t.Fatalf("mode = %q, want heat after failed command", got)
	}
	if enable, _ := h.Attr("dev1", "Heating_Enable"); enable != 1.0 {
		t.Fatalf("Heating_Enable = %v, want unchanged", enable)
	}
}

func TestTemperatureCommand(t *testing.T) {
	_, h, bus, controller := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"Heating_Enable": 1.0})

	bus.deliver("vaillant2mqtt/dev1/climate/temperature/set", "55.5")

	controller.mu.Lock()
	commands := controller.commands
	controller.mu.Unlock()
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	if value, _ := hub.AsFloat(commands[0]["Flow_Temperature_Setpoint"]); value != 55.5 {
		t.Fatalf("setpoint command = %v, want 55.5", commands[0])
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/climate/temperature/state"); got != "55.5" {
		t.Fatalf("temperature = %q, want 55.5", got)
	}
}

func TestReverseSyncFromPush(t *testing.T) {
	_, h, bus, _ := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"Heating_Enable": 1.0, "Flow_Temperature_Setpoint": 42.0})

	// External change from the vendor app lands via a push report.
	h.ApplyReport("dev1", hub.Attrs{"Heating_Enable": 0.0})

	if got, _ := bus.last("vaillant2mqtt/dev1/climate/mode/state"); got != "off" {
		t.Fatalf("mode = %q, want off after push", got)
	}
	// The setpoint was absent from the push; the cached value holds.
	if got, _ := bus.last("vaillant2mqtt/dev1/climate/temperature/state"); got != "42" {
		t.Fatalf("temperature = %q, want cached 42", got)
	}
}

func TestDefaultsWhenNeverReported(t *testing.T) {
	_, h, bus, _ := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"Heating_Enable": 1.0})

	if got, _ := bus.last("vaillant2mqtt/dev1/climate/temperature/state"); got != "35" {
		t.Fatalf("temperature = %q, want default 35", got)
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/climate/min_temp/state"); got != "30" {
		t.Fatalf("min_temp = %q, want default 30", got)
	}
	if got, _ := bus.last("vaillant2mqtt/dev1/climate/max_temp/state"); got != "75" {
		t.Fatalf("max_temp = %q, want default 75", got)
	}
}

func TestDiscoveryPayloadShape(t *testing.T) {
	_, h, bus, _ := setupPlatform(t)

	h.ApplyReport("dev1", hub.Attrs{"Heating_Enable": 1.0})

	payload, ok := bus.last("homeassistant/climate/dev1/climate/config")
	if !ok {
		t.Fatalf("expected discovery payload")
	}
	for _, want := range []string{
		`"unique_id":"dev1_climate"`,
		`"mode_command_topic":"vaillant2mqtt/dev1/climate/mode/set"`,
		`"temperature_command_topic":"vaillant2mqtt/dev1/climate/temperature/set"`,
		`"availability_topic":"vaillant2mqtt/availability"`,
	} {
		if !strings.Contains(payload, want) {
			t.Fatalf("discovery payload missing %s: %s", want, payload)
		}
	}
}
