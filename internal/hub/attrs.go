package hub

// Attrs is a snapshot of a device's reported attributes, keyed by the
// cloud attribute name (e.g. "Heating_Enable").
type Attrs map[string]any

// Clone returns a shallow copy.
func (a Attrs) Clone() Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge overlays other onto a, returning the keys that changed value.
func (a Attrs) Merge(other Attrs) []string {
	changed := make([]string, 0, len(other))
	for k, v := range other {
		if prev, ok := a[k]; !ok || prev != v {
			changed = append(changed, k)
		}
		a[k] = v
	}
	return changed
}

// Device describes a bridged physical device.
type Device struct {
	ID              string
	MAC             string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	Online          bool
}

// AsFloat coerces a reported attribute value to float64. The cloud
// reports numbers as JSON numbers, but integers occasionally arrive as
// int after round-trips through the command path.
func AsFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	default:
		return 0, false
	}
}

// AsEnable coerces a 0/1 enable attribute, accepting bools from the
// command path.
func AsEnable(v any) (int, bool) {
	switch value := v.(type) {
	case bool:
		if value {
			return 1, true
		}
		return 0, true
	default:
		f, ok := AsFloat(v)
		if !ok {
			return 0, false
		}
		return int(f), true
	}
}
