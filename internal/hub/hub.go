package hub

import (
	"context"
	"fmt"
	"sync"
)

// EventKind discriminates dispatcher events.
type EventKind int

const (
	// DeviceConnected fires on the first attribute report for a device.
	DeviceConnected EventKind = iota
	// DeviceUpdated fires on every subsequent report; Attrs carries
	// only the keys present in that report.
	DeviceUpdated
)

// Event is delivered to subscribers on device state changes.
type Event struct {
	Kind     EventKind
	DeviceID string
	Attrs    Attrs
}

// Controller issues commands to the physical device via the cloud.
type Controller interface {
	ControlDevice(ctx context.Context, deviceID string, attrs Attrs) error
}

type deviceState struct {
	device    Device
	attrs     Attrs
	connected bool
}

// Hub owns per-device attribute state and fans out change events to
// platform entities. All mutation goes through ApplyReport (reverse
// sync from the cloud) or ControlDevice (the command path); both end
// by dispatching so entities refresh their caches and write state.
type Hub struct {
	controller Controller

	mu      sync.RWMutex
	devices map[string]*deviceState
	subs    map[int]func(Event)
	nextID  int
}

func New(controller Controller) *Hub {
	return &Hub{
		controller: controller,
		devices:    make(map[string]*deviceState),
		subs:       make(map[int]func(Event)),
	}
}

// Subscribe registers a callback for all device events. The returned
// function unsubscribes.
func (h *Hub) Subscribe(fn func(Event)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// UpsertDevice records device metadata without touching attributes.
func (h *Hub) UpsertDevice(device Device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state := h.ensureDevice(device.ID)
	state.device = device
}

// Device returns recorded metadata for a device.
func (h *Hub) Device(deviceID string) (Device, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	return state.device, true
}

// Devices lists the known devices.
func (h *Hub) Devices() []Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Device, 0, len(h.devices))
	for _, state := range h.devices {
		out = append(out, state.device)
	}
	return out
}

// ApplyReport merges a pushed attribute report into the device state
// and dispatches. The first report for a device fires DeviceConnected
// with the full snapshot so platforms can decide whether to create
// entities; later reports fire DeviceUpdated with just the pushed keys.
func (h *Hub) ApplyReport(deviceID string, attrs Attrs) {
	if len(attrs) == 0 {
		return
	}

	h.mu.Lock()
	state := h.ensureDevice(deviceID)
	state.attrs.Merge(attrs)
	first := !state.connected
	state.connected = true
	var event Event
	if first {
		event = Event{Kind: DeviceConnected, DeviceID: deviceID, Attrs: state.attrs.Clone()}
	} else {
		event = Event{Kind: DeviceUpdated, DeviceID: deviceID, Attrs: attrs.Clone()}
	}
	subs := h.subscribers()
	h.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}

// ControlDevice runs the unified update flow: send the command, then
// update device attrs, then dispatch so entity caches and published
// state follow. A failed command leaves all state untouched.
func (h *Hub) ControlDevice(ctx context.Context, deviceID string, attrs Attrs) error {
	if h.controller == nil {
		return fmt.Errorf("no device controller configured")
	}
	if err := h.controller.ControlDevice(ctx, deviceID, attrs); err != nil {
		return fmt.Errorf("control device %s: %w", deviceID, err)
	}

	h.mu.Lock()
	state := h.ensureDevice(deviceID)
	state.attrs.Merge(attrs)
	subs := h.subscribers()
	h.mu.Unlock()

	event := Event{Kind: DeviceUpdated, DeviceID: deviceID, Attrs: attrs.Clone()}
	for _, fn := range subs {
		fn(event)
	}
	return nil
}

// Attr returns the live reported value for one attribute.
func (h *Hub) Attr(deviceID, name string) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.devices[deviceID]
	if !ok {
		return nil, false
	}
	value, ok := state.attrs[name]
	return value, ok
}

// Snapshot returns a copy of the device's current attributes.
func (h *Hub) Snapshot(deviceID string) Attrs {
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.devices[deviceID]
	if !ok {
		return Attrs{}
	}
	return state.attrs.Clone()
}

// callers must hold h.mu
func (h *Hub) ensureDevice(deviceID string) *deviceState {
	state, ok := h.devices[deviceID]
	if !ok {
		state = &deviceState{device: Device{ID: deviceID}, attrs: make(Attrs)}
		h.devices[deviceID] = state
	}
	return state
}

// callers must hold h.mu
func (h *Hub) subscribers() []func(Event) {
	out := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		out = append(out, fn)
	}
	return out
}
