package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion                     = 1
	DefaultPath                       = "/etc/vaillant2mqtt/config.yaml"
	DefaultGRPCAddr                   = "0.0.0.0:9000"
	DefaultHTTPAddr                   = "0.0.0.0:8080"
	DefaultDashboardDir               = "/var/lib/vaillant2mqtt/dashboards"
	DefaultMQTTClientID               = "vaillant2mqtt"
	DefaultDiscoveryPrefix            = "homeassistant"
	DefaultBaseTopic                  = "vaillant2mqtt"
	DefaultAuthBlobPrefix             = "vaillant2mqtt/auth"
	DefaultAuthRefreshIntervalSeconds = 600
	DefaultResyncSchedule             = "@every 10m"
)

// Config is the top-level daemon configuration.
type Config struct {
	SchemaVersion int          `yaml:"schema_version"`
	Core          CoreConfig   `yaml:"core"`
	MQTT          MQTTConfig   `yaml:"mqtt"`
	Auth          AuthConfig   `yaml:"auth"`
	Vaillant      *VaillantCfg `yaml:"vaillant"`
	Platforms     PlatformsCfg `yaml:"platforms"`
}

type CoreConfig struct {
	GRPCAddr     string `yaml:"grpc_addr"`
	HTTPAddr     string `yaml:"http_addr"`
	DashboardDir string `yaml:"dashboard_dir"`
}

type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	BaseTopic       string `yaml:"base_topic"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

type AuthConfig struct {
	BootstrapFile          string `yaml:"bootstrap_file"`
	RefreshEnabled         *bool  `yaml:"refresh_enabled"`
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
	BlobEndpoint           string `yaml:"blob_endpoint"`
	BlobBucket             string `yaml:"blob_bucket"`
	BlobPrefix             string `yaml:"blob_prefix"`
	BlobAccessKeyFile      string `yaml:"blob_access_key_file"`
	BlobSecretKeyFile      string `yaml:"blob_secret_key_file"`
	BlobRegion             string `yaml:"blob_region"`
}

type VaillantCfg struct {
	APIURL         string `yaml:"api_url"`
	WebsocketURL   string `yaml:"websocket_url"`
	DeviceID       string `yaml:"device_id"`
	ResyncSchedule string `yaml:"resync_schedule"`
}

type PlatformsCfg struct {
	Climate     *ClimateCfg     `yaml:"climate"`
	WaterHeater *WaterHeaterCfg `yaml:"water_heater"`
	Sensor      *SensorCfg      `yaml:"sensor"`
}

type ClimateCfg struct{}

type WaterHeaterCfg struct{}

type SensorCfg struct {
	Attributes []string `yaml:"attributes"`
}

// Load parses the YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultMQTTClientID
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = DefaultBaseTopic
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}

	if cfg.Auth.BlobPrefix == "" {
		cfg.Auth.BlobPrefix = DefaultAuthBlobPrefix
	}
	if cfg.Auth.RefreshEnabled == nil {
		enabled := true
		cfg.Auth.RefreshEnabled = &enabled
	}
	if cfg.Auth.RefreshIntervalSeconds == 0 {
		cfg.Auth.RefreshIntervalSeconds = DefaultAuthRefreshIntervalSeconds
	}

	if cfg.Vaillant != nil && cfg.Vaillant.ResyncSchedule == "" {
		cfg.Vaillant.ResyncSchedule = DefaultResyncSchedule
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	if cfg.Core.DashboardDir == "" {
		return fmt.Errorf("core.dashboard_dir is required")
	}

	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	if cfg.Auth.BlobEndpoint == "" {
		return fmt.Errorf("auth.blob_endpoint is required")
	}
	if cfg.Auth.BlobBucket == "" {
		return fmt.Errorf("auth.blob_bucket is required")
	}
	if cfg.Auth.BlobAccessKeyFile == "" {
		return fmt.Errorf("auth.blob_access_key_file is required")
	}
	if cfg.Auth.BlobSecretKeyFile == "" {
		return fmt.Errorf("auth.blob_secret_key_file is required")
	}
	if cfg.Auth.BootstrapFile == "" {
		return fmt.Errorf("auth.bootstrap_file is required")
	}

	if cfg.Vaillant == nil {
		return fmt.Errorf("vaillant config is required")
	}

	return nil
}

// EnabledPlatforms maps enabled platform IDs based on config presence.
func EnabledPlatforms(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Platforms.Climate != nil {
		enabled["climate"] = true
	}
	if cfg.Platforms.WaterHeater != nil {
		enabled["water_heater"] = true
	}
	if cfg.Platforms.Sensor != nil {
		enabled["sensor"] = true
	}
	return enabled
}
