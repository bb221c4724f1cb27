// Package config loads and validates the application configuration. Files
// are YAML (JSON is a YAML subset and parses too); a small set of
// RAKAN_* environment variables override file values for container
// deployments.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CalebLauder/rakan-backend/transport"
)

// Transport selection.
const (
	TransportNATS = "nats"
	TransportMQTT = "mqtt"
)

// Decision source modes.
const (
	DecisionModeLocal = "local"
	DecisionModeHTTP  = "http"
)

// Store backends.
const (
	StoreBackendNATS   = "nats"
	StoreBackendRedis  = "redis"
	StoreBackendMemory = "memory"
)

// Device types accepted in the devices list.
const (
	DeviceTypeSwitch      = "switch"
	DeviceTypeMotion      = "motion"
	DeviceTypeTemperature = "temperature"
)

// Duration wraps time.Duration so YAML values like "5s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete application configuration.
type Config struct {
	Namespace string         `yaml:"namespace"`
	Transport string         `yaml:"transport"`
	Log       LogConfig      `yaml:"log"`
	NATS      NATSConfig     `yaml:"nats"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Decision  DecisionConfig `yaml:"decision"`
	Store     StoreConfig    `yaml:"store"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
	Gateway   GatewayConfig  `yaml:"gateway"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	Devices   []DeviceConfig `yaml:"devices"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// NATSConfig is the broker connection for the NATS transport and the
// NATS-backed stores.
type NATSConfig struct {
	URL           string   `yaml:"url"`
	Name          string   `yaml:"name"`
	MaxReconnects int      `yaml:"maxReconnects"`
	ReconnectWait Duration `yaml:"reconnectWait"`
	Timeout       Duration `yaml:"timeout"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	Token         string   `yaml:"token"`
}

// MQTTConfig is the broker connection for the MQTT transport.
type MQTTConfig struct {
	BrokerURL string `yaml:"brokerUrl"`
	ClientID  string `yaml:"clientId"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// DecisionConfig selects the decision source.
type DecisionConfig struct {
	Mode     string   `yaml:"mode"`
	Endpoint string   `yaml:"endpoint"` // required for http mode
	Timeout  Duration `yaml:"timeout"`
}

// StoreConfig selects the state store backend. The event log always lives
// in JetStream when the backend is nats, in memory otherwise.
type StoreConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig is the Redis state store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PipelineConfig tunes the event pipeline.
type PipelineConfig struct {
	StepTimeout Duration `yaml:"stepTimeout"`
}

// GatewayConfig is the HTTP API.
type GatewayConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// MetricsConfig is the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DeviceConfig declares one simulated device for the simulate command.
type DeviceConfig struct {
	ID       string   `yaml:"id"`
	Type     string   `yaml:"type"`
	Interval Duration `yaml:"interval"`
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	return &Config{
		Namespace: transport.DefaultNamespace,
		Transport: TransportNATS,
		Log:       LogConfig{Level: "info", Format: "text"},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "rakan",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			Timeout:       Duration(5 * time.Second),
		},
		MQTT: MQTTConfig{
			BrokerURL: "tcp://localhost:1883",
			ClientID:  "rakan",
		},
		Decision: DecisionConfig{
			Mode:    DecisionModeLocal,
			Timeout: Duration(5 * time.Second),
		},
		Store: StoreConfig{
			Backend: StoreBackendNATS,
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Pipeline: PipelineConfig{StepTimeout: Duration(5 * time.Second)},
		Gateway:  GatewayConfig{Enabled: true, Port: 8080},
		Metrics:  MetricsConfig{Enabled: true, Port: 9090},
	}
}
