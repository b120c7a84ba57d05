package waterheater

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
	"github.com/joshp123/vaillant2mqtt/internal/mqtt"
)

const (
	attrTankLoadingEnable = "WarmStar_Tank_Loading_Enable"
	attrDHWSetpoint       = "DHW_setpoint"
	attrLowerDHWLimit     = "Lower_Limitation_of_DHW_Setpoint"
	attrUpperDHWLimit     = "Upper_Limitation_of_DHW_Setpoint"

	operationOn  = "on"
	operationOff = "off"

	commandTimeout = 15 * time.Second
)

// Entity bridges domestic hot water to a Home Assistant MQTT water
// heater entity. Created on the first report carrying DHW_setpoint.
// Unlike the climate circuit, DHW has no fallback defaults: unknown
// values are simply not published.
type Entity struct {
	hub    *hub.Hub
	bus    mqtt.Bus
	topics mqtt.Topics
	cache  *hub.AttrCache

	deviceID string

	mu         sync.Mutex
	unsubs     []func()
	discovered bool
}

func NewEntity(h *hub.Hub, bus mqtt.Bus, baseTopic, deviceID string) *Entity {
	return &Entity{
		hub:      h,
		bus:      bus,
		topics:   mqtt.NewTopics(baseTopic, deviceID, "water_heater"),
		cache:    hub.NewAttrCache(),
		deviceID: deviceID,
	}
}

// Announce publishes the discovery config and subscribes the command
// topics. Setpoint bounds are included only when already reported.
func (e *Entity) Announce(discoveryPrefix, availabilityTopic string) error {
	e.mu.Lock()
	if e.discovered {
		e.mu.Unlock()
		return nil
	}
	e.discovered = true
	e.mu.Unlock()

	device, _ := e.hub.Device(e.deviceID)
	live := e.hub.Snapshot(e.deviceID)

	cfg := mqtt.WaterHeaterConfig{
		UniqueID:                e.deviceID + "_water_heater",
		Modes:                   []string{operationOn, operationOff},
		ModeStateTopic:          e.topics.State("mode"),
		ModeCommandTopic:        e.topics.Command("mode"),
		TemperatureStateTopic:   e.topics.State("temperature"),
		TemperatureCommandTopic: e.topics.Command("temperature"),
		CurrentTemperatureTopic: e.topics.State("current_temperature"),
		Precision:               0.5,
		AvailabilityTopic:       availabilityTopic,
		Device:                  deviceInfo(device),
	}
	if value, ok := e.lookupFloat(live, attrLowerDHWLimit); ok {
		cfg.MinTemp = &value
	}
	if value, ok := e.lookupFloat(live, attrUpperDHWLimit); ok {
		cfg.MaxTemp = &value
	}

	if err := mqtt.PublishDiscovery(e.bus, discoveryPrefix, "water_heater", e.deviceID, "water_heater", cfg); err != nil {
		return fmt.Errorf("announce water heater: %w", err)
	}

	unsubMode, err := e.bus.Subscribe(e.topics.Command("mode"), e.handleModeCommand)
	if err != nil {
		return fmt.Errorf("subscribe mode command: %w", err)
	}
	unsubTemp, err := e.bus.Subscribe(e.topics.Command("temperature"), e.handleTemperatureCommand)
	if err != nil {
		unsubMode()
		return fmt.Errorf("subscribe temperature command: %w", err)
	}

	e.mu.Lock()
	e.unsubs = append(e.unsubs, unsubMode, unsubTemp)
	e.mu.Unlock()
	return nil
}

// Close drops command subscriptions.
func (e *Entity) Close() {
	e.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// HandleReport applies a pushed attribute report.
func (e *Entity) HandleReport(data hub.Attrs) {
	e.cache.Refresh(data,
		attrTankLoadingEnable, attrDHWSetpoint, attrLowerDHWLimit, attrUpperDHWLimit)
	e.PublishState()
}

// PublishState writes current operation and temperatures through the
// read-through cache. Attributes never reported stay unpublished.
func (e *Entity) PublishState() {
	live := e.hub.Snapshot(e.deviceID)

	if value, ok := e.cache.Lookup(live, attrTankLoadingEnable); ok {
		if enable, ok := hub.AsEnable(value); ok {
			operation := operationOff
			if enable == 1 {
				operation = operationOn
			}
			e.publish("mode", operation)
		}
	}
	if value, ok := e.lookupFloat(live, attrDHWSetpoint); ok {
		e.publish("temperature", formatTemp(value))
		e.publish("current_temperature", formatTemp(value))
	}
	if value, ok := e.lookupFloat(live, attrLowerDHWLimit); ok {
		e.publish("min_temp", formatTemp(value))
	}
	if value, ok := e.lookupFloat(live, attrUpperDHWLimit); ok {
		e.publish("max_temp", formatTemp(value))
	}
}

func (e *Entity) handleModeCommand(payload []byte) {
	var value int
	switch string(payload) {
	case operationOn:
		value = 1
	case operationOff:
		value = 0
	default:
		return
	}

	e.updateAttribute(attrTankLoadingEnable, value)
}

func (e *Entity) handleTemperatureCommand(payload []byte) {
	target, err := strconv.ParseFloat(string(payload), 64)
	if err != nil {
		return
	}

	// DHW setpoints are half-degree steps.
	e.updateAttribute(attrDHWSetpoint, math.Round(target*2)/2)
}

// updateAttribute runs the command path for one attribute: control the
// device, then cache, then republish.
func (e *Entity) updateAttribute(name string, value any) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := e.hub.ControlDevice(ctx, e.deviceID, hub.Attrs{name: value}); err != nil {
		return
	}

	e.cache.Set(name, value)
	e.PublishState()
}

func (e *Entity) lookupFloat(live hub.Attrs, name string) (float64, bool) {
	value, ok := e.cache.Lookup(live, name)
	if !ok {
		return 0, false
	}
	return hub.AsFloat(value)
}

func (e *Entity) publish(object, value string) {
	_ = e.bus.Publish(e.topics.State(object), true, []byte(value))
}

func formatTemp(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func deviceInfo(device hub.Device) mqtt.DeviceInfo {
	name := device.Model
	if name == "" {
		name = device.ID
	}
	return mqtt.DeviceInfo{
		Identifiers:  []string{device.ID},
		Name:         name,
		Manufacturer: "Vaillant",
		Model:        device.Model,
		SWVersion:    device.FirmwareVersion,
	}
}
