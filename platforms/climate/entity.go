package climate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
	"github.com/joshp123/vaillant2mqtt/internal/mqtt"
)

const (
	attrHeatingEnable = "Heating_Enable"
	attrFlowSetpoint  = "Flow_Temperature_Setpoint"
	attrLowerCHLimit  = "Lower_Limitation_of_CH_Setpoint"
	attrUpperCHLimit  = "Upper_Limitation_of_CH_Setpoint"

	defaultFlowSetpoint = 35.0
	defaultLowerCHLimit = 30.0
	defaultUpperCHLimit = 75.0

	modeHeat = "heat"
	modeOff  = "off"

	actionHeating = "heating"
	actionOff     = "off"
	actionIdle    = "idle"

	commandTimeout = 15 * time.Second
)

// Entity bridges one device's central heating circuit to a Home
// Assistant MQTT climate entity. It is created lazily on the first
// report that carries Heating_Enable; boilers without a connected
// thermostat never report it and get no climate entity.
type Entity struct {
	hub    *hub.Hub
	bus    mqtt.Bus
	topics mqtt.Topics
	cache  *hub.AttrCache

	deviceID string

	mu         sync.Mutex
	mode       string
	action     string
	unsubs     []func()
	discovered bool
}

func NewEntity(h *hub.Hub, bus mqtt.Bus, baseTopic, deviceID string) *Entity {
	return &Entity{
		hub:      h,
		bus:      bus,
		topics:   mqtt.NewTopics(baseTopic, deviceID, "climate"),
		cache:    hub.NewAttrCache(),
		deviceID: deviceID,
		mode:     modeOff,
		action:   actionIdle,
	}
}

// Announce publishes the discovery config and subscribes the command
// topics. Safe to call once per entity.
func (e *Entity) Announce(discoveryPrefix, availabilityTopic string) error {
	e.mu.Lock()
	if e.discovered {
		e.mu.Unlock()
		return nil
	}
	e.discovered = true
	e.mu.Unlock()

	device, _ := e.hub.Device(e.deviceID)
	cfg := mqtt.ClimateConfig{
		UniqueID:                e.deviceID + "_climate",
		Modes:                   []string{modeHeat, modeOff},
		ModeStateTopic:          e.topics.State("mode"),
		ModeCommandTopic:        e.topics.Command("mode"),
		ActionTopic:             e.topics.State("action"),
		TemperatureStateTopic:   e.topics.State("temperature"),
		TemperatureCommandTopic: e.topics.Command("temperature"),
		CurrentTemperatureTopic: e.topics.State("current_temperature"),
		MinTemp:                 defaultLowerCHLimit,
		MaxTemp:                 defaultUpperCHLimit,
		TempStep:                0.5,
		AvailabilityTopic:       availabilityTopic,
		Device:                  deviceInfo(device),
	}

	if err := mqtt.PublishDiscovery(e.bus, discoveryPrefix, "climate", e.deviceID, "climate", cfg); err != nil {
		return fmt.Errorf("announce climate: %w", err)
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

// HandleReport applies a pushed attribute report: refresh the cache
// with the keys that arrived, then write state.
func (e *Entity) HandleReport(data hub.Attrs) {
	e.cache.Refresh(data,
		attrFlowSetpoint, attrLowerCHLimit, attrUpperCHLimit)

	if value, ok := data[attrHeatingEnable]; ok {
		if enable, ok := hub.AsEnable(value); ok {
			e.mu.Lock()
			if enable == 1 {
				e.mode, e.action = modeHeat, actionHeating
			} else {
				e.mode, e.action = modeOff, actionOff
			}
			e.mu.Unlock()
		}
	}

	e.PublishState()
}

// PublishState writes the full entity state from live attrs through
// the read-through cache.
func (e *Entity) PublishState() {
	live := e.hub.Snapshot(e.deviceID)

	mode, action := e.resolveModeAction(live)
	setpoint := e.cache.LookupFloat(live, attrFlowSetpoint, defaultFlowSetpoint)

	e.publish("mode", mode)
	e.publish("action", action)
	e.publish("temperature", formatTemp(setpoint))
	e.publish("current_temperature", formatTemp(setpoint))
	e.publish("min_temp", formatTemp(e.cache.LookupFloat(live, attrLowerCHLimit, defaultLowerCHLimit)))
	e.publish("max_temp", formatTemp(e.cache.LookupFloat(live, attrUpperCHLimit, defaultUpperCHLimit)))
}

// resolveModeAction maps Heating_Enable onto HVAC mode and action,
// holding the last known values when the attribute is absent.
func (e *Entity) resolveModeAction(live hub.Attrs) (string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	value, ok := e.cache.Lookup(live, attrHeatingEnable)
	if !ok {
		return e.mode, e.action
	}
	enable, ok := hub.AsEnable(value)
	if !ok {
		return e.mode, e.action
	}

	switch enable {
	case 1:
		e.mode, e.action = modeHeat, actionHeating
	case 0:
		e.mode, e.action = modeOff, actionOff
	default:
		e.action = actionIdle
	}
	return e.mode, e.action
}

func (e *Entity) handleModeCommand(payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var enable bool
	switch string(payload) {
	case modeHeat:
		enable = true
	case modeOff:
		enable = false
	default:
		return
	}

	if err := e.hub.ControlDevice(ctx, e.deviceID, hub.Attrs{attrHeatingEnable: enable}); err != nil {
		return
	}

	e.cache.Set(attrHeatingEnable, enable)
	e.mu.Lock()
	if enable {
		e.mode, e.action = modeHeat, actionHeating
	} else {
		e.mode, e.action = modeOff, actionOff
	}
	e.mu.Unlock()
	e.PublishState()
}

func (e *Entity) handleTemperatureCommand(payload []byte) {
	target, err := strconv.ParseFloat(string(payload), 64)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := e.hub.ControlDevice(ctx, e.deviceID, hub.Attrs{attrFlowSetpoint: target}); err != nil {
		return
	}

	e.cache.Set(attrFlowSetpoint, target)
	e.PublishState()
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
