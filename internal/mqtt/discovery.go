package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DeviceInfo is the discovery device block linking entities together
// in the Home Assistant device registry.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// ClimateConfig is the discovery payload for an MQTT climate entity.
type ClimateConfig struct {
	Name                    string     `json:"name,omitempty"`
	UniqueID                string     `json:"unique_id"`
	Modes                   []string   `json:"modes"`
	ModeStateTopic          string     `json:"mode_state_topic"`
	ModeCommandTopic        string     `json:"mode_command_topic"`
	ActionTopic             string     `json:"action_topic"`
	TemperatureStateTopic   string     `json:"temperature_state_topic"`
	TemperatureCommandTopic string     `json:"temperature_command_topic"`
	CurrentTemperatureTopic string     `json:"current_temperature_topic,omitempty"`
	MinTemp                 float64    `json:"min_temp"`
	MaxTemp                 float64    `json:"max_temp"`
	TempStep                float64    `json:"temp_step,omitempty"`
	AvailabilityTopic       string     `json:"availability_topic,omitempty"`
	Device                  DeviceInfo `json:"device"`
}

// WaterHeaterConfig is the discovery payload for an MQTT water heater.
type WaterHeaterConfig struct {
	Name                    string     `json:"name,omitempty"`
	UniqueID                string     `json:"unique_id"`
	Modes                   []string   `json:"modes"`
	ModeStateTopic          string     `json:"mode_state_topic"`
	ModeCommandTopic        string     `json:"mode_command_topic"`
	TemperatureStateTopic   string     `json:"temperature_state_topic"`
	TemperatureCommandTopic string     `json:"temperature_command_topic"`
	CurrentTemperatureTopic string     `json:"current_temperature_topic,omitempty"`
	MinTemp                 *float64   `json:"min_temp,omitempty"`
	MaxTemp                 *float64   `json:"max_temp,omitempty"`
	Precision               float64    `json:"precision,omitempty"`
	AvailabilityTopic       string     `json:"availability_topic,omitempty"`
	Device                  DeviceInfo `json:"device"`
}

// SensorConfig is the discovery payload for an MQTT sensor entity.
type SensorConfig struct {
	Name              string     `json:"name,omitempty"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	EntityCategory    string     `json:"entity_category,omitempty"`
	AvailabilityTopic string     `json:"availability_topic,omitempty"`
	Device            DeviceInfo `json:"device"`
}

// Topics derives the topic layout for one entity.
type Topics struct {
	baseTopic string
	deviceID  string
	platform  string
}

func NewTopics(baseTopic, deviceID, platform string) Topics {
	return Topics{baseTopic: baseTopic, deviceID: deviceID, platform: platform}
}

func (t Topics) State(object string) string {
	return fmt.Sprintf("%s/%s/%s/%s/state", t.baseTopic, t.deviceID, t.platform, object)
}

func (t Topics) Command(object string) string {
	return fmt.Sprintf("%s/%s/%s/%s/set", t.baseTopic, t.deviceID, t.platform, object)
}

// DiscoveryTopic builds the Home Assistant discovery config topic.
func DiscoveryTopic(prefix, component, nodeID, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, component, sanitizeID(nodeID), objectID)
}

// PublishDiscovery publishes a retained discovery config payload.
func PublishDiscovery(bus Bus, prefix, component, nodeID, objectID string, cfg any) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal discovery config: %w", err)
	}
	return bus.Publish(DiscoveryTopic(prefix, component, nodeID, objectID), true, payload)
}

// sanitizeID maps device ids into the discovery topic charset.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id)
}
