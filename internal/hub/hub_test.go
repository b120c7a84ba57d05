package hub

import (
	"context"
	"errors"
	"testing"
)

type fakeController struct {
	calls []Attrs
	err   error
}

func (f *fakeController) ControlDevice(_ context.Context, _ string, attrs Attrs) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, attrs.Clone())
	return nil
}

func TestFirstReportDispatchesConnected(t *testing.T) {
	h := New(&fakeController{})

	var events []Event
	unsub := h.Subscribe(func(e Event) { events = append(events, e) })
	defer unsub()

	h.ApplyReport("dev1", Attrs{"Heating_Enable": float64(1), "DHW_setpoint": 45.0})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Kind != DeviceConnected {
		t.Fatalf("expected DeviceConnected, got %v", events[0].Kind)
	}
	if events[0].Attrs["DHW_setpoint"] != 45.0 {
		t.Fatalf("expected snapshot in connected event: %+v", events[0].Attrs)
	}

	h.ApplyReport("dev1", Attrs{"DHW_setpoint": 50.0})
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Kind != DeviceUpdated {
		t.Fatalf("expected DeviceUpdated, got %v", events[1].Kind)
	}
	if _, ok := events[1].Attrs["Heating_Enable"]; ok {
		t.Fatalf("update event should carry only pushed keys: %+v", events[1].Attrs)
	}
}

func TestControlDeviceUpdatesAttrsAndDispatches(t *testing.T) {
	controller := &fakeController{}
	h := New(controller)

	h.ApplyReport("dev1", Attrs{"Heating_Enable": float64(1)})

	var events []Event
	unsub := h.Subscribe(func(e Event) { events = append(events, e) })
	defer unsub()

	if err := h.ControlDevice(context.Background(), "dev1", Attrs{"Heating_Enable": false}); err != nil {
		t.Fatalf("control: %v", err)
	}

	if len(controller.calls) != 1 {
		t.Fatalf("expected 1 command, got %d", len(controller.calls))
	}
	value, ok := h.Attr("dev1", "Heating_Enable")
	if !ok || value != false {
		t.Fatalf("expected attr updated after command, got %v", value)
	}
	if len(events) != 1 || events[0].Kind != DeviceUpdated {
		t.Fatalf("expected DeviceUpdated dispatch, got %+v", events)
	}
}

func TestControlDeviceFailureLeavesStateUntouched(t *testing.T) {
	controller := &fakeController{err: errors.New("cloud down")}
	h := New(controller)

	h.ApplyReport("dev1", Attrs{"Heating_Enable": float64(1)})

	var dispatched int
	unsub := h.Subscribe(func(Event) { dispatched++ })
	defer unsub()

	err := h.ControlDevice(context.Background(), "dev1", Attrs{"Heating_Enable": false})
	if err == nil {
		t.Fatalf("expected command error")
	}
	value, _ := h.Attr("dev1", "Heating_Enable")
	if value != float64(1) {
		t.Fatalf("attr must not change on failed command, got %v", value)
	}
	if dispatched != 0 {
		t.Fatalf("no dispatch expected on failed command")
	}
}

func TestAttrCacheReadThrough(t *testing.T) {
	cache := NewAttrCache()

	live := Attrs{"Flow_Temperature_Setpoint": 42.0}
	if got := cache.LookupFloat(live, "Flow_Temperature_Setpoint", 35.0); got != 42.0 {
		t.Fatalf("expected live value, got %v", got)
	}

	// Live value gone: last cached value wins.
	if got := cache.LookupFloat(Attrs{}, "Flow_Temperature_Setpoint", 35.0); got != 42.0 {
		t.Fatalf("expected cached value, got %v", got)
	}

	// Never seen: default applies.
	if got := cache.LookupFloat(Attrs{}, "Upper_Limitation_of_CH_Setpoint", 75.0); got != 75.0 {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestAttrCacheRefreshOnlyPresentKeys(t *testing.T) {
	cache := NewAttrCache()
	cache.Set("DHW_setpoint", 45.0)
	cache.Set("WarmStar_Tank_Loading_Enable", float64(1))

	cache.Refresh(Attrs{"DHW_setpoint": 50.0}, "DHW_setpoint", "WarmStar_Tank_Loading_Enable")

	if value, _ := cache.Get("DHW_setpoint"); value != 50.0 {
		t.Fatalf("expected refreshed setpoint, got %v", value)
	}
	if value, _ := cache.Get("WarmStar_Tank_Loading_Enable"); value != float64(1) {
		t.Fatalf("absent key must keep cached value, got %v", value)
	}
}

func TestUpsertDevicePreservesAttrs(t *testing.T) {
	h := New(nil)
	h.ApplyReport("dev1", Attrs{"DHW_setpoint": 45.0})
	h.UpsertDevice(Device{ID: "dev1", Model: "vSMART", Online: true})

	if value, ok := h.Attr("dev1", "DHW_setpoint"); !ok || value != 45.0 {
		t.Fatalf("attrs lost on metadata upsert: %v", value)
	}
	device, ok := h.Device("dev1")
	if !ok || device.Model != "vSMART" {
		t.Fatalf("unexpected device: %+v", device)
	}
}
