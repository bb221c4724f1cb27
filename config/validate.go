package config

import (
	"fmt"
	"strings"

	"github.com/CalebLauder/rakan-backend/errors"
)

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Validate checks the configuration for contradictions and missing
// required fields. All problems are reported at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Namespace == "" {
		problems = append(problems, "namespace must not be empty")
	}
	if !oneOf(c.Transport, TransportNATS, TransportMQTT) {
		problems = append(problems, fmt.Sprintf("transport %q must be %s or %s", c.Transport, TransportNATS, TransportMQTT))
	}
	if !oneOf(c.Log.Level, "debug", "info", "warn", "error") {
		problems = append(problems, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	if !oneOf(c.Log.Format, "text", "json") {
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}

	if c.Transport == TransportNATS && c.NATS.URL == "" {
		problems = append(problems, "nats.url is required for the nats transport")
	}
	if c.Transport == TransportMQTT && c.MQTT.BrokerURL == "" {
		problems = append(problems, "mqtt.brokerUrl is required for the mqtt transport")
	}
	if c.NATS.Token != "" && c.NATS.Username != "" {
		problems = append(problems, "nats.token and nats.username are mutually exclusive")
	}

	if !oneOf(c.Decision.Mode, DecisionModeLocal, DecisionModeHTTP) {
		problems = append(problems, fmt.Sprintf("decision.mode %q must be %s or %s", c.Decision.Mode, DecisionModeLocal, DecisionModeHTTP))
	}
	if c.Decision.Mode == DecisionModeHTTP && c.Decision.Endpoint == "" {
		problems = append(problems, "decision.endpoint is required for http mode")
	}

	if !oneOf(c.Store.Backend, StoreBackendNATS, StoreBackendRedis, StoreBackendMemory) {
		problems = append(problems, fmt.Sprintf("store.backend %q must be %s, %s or %s", c.Store.Backend, StoreBackendNATS, StoreBackendRedis, StoreBackendMemory))
	}
	if c.Store.Backend == StoreBackendRedis && c.Store.Redis.Addr == "" {
		problems = append(problems, "store.redis.addr is required for the redis backend")
	}
	if c.Store.Backend == StoreBackendNATS && c.Transport != TransportNATS && c.NATS.URL == "" {
		problems = append(problems, "nats.url is required for the nats store backend")
	}

	if c.Gateway.Enabled && (c.Gateway.Port < 1 || c.Gateway.Port > 65535) {
		problems = append(problems, fmt.Sprintf("gateway.port %d out of range", c.Gateway.Port))
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		problems = append(problems, fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
	}
	if c.Gateway.Enabled && c.Metrics.Enabled && c.Gateway.Port == c.Metrics.Port {
		problems = append(problems, fmt.Sprintf("gateway.port and metrics.port both %d", c.Gateway.Port))
	}

	seen := make(map[string]struct{}, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			problems = append(problems, fmt.Sprintf("devices[%d].id must not be empty", i))
			continue
		}
		if _, dup := seen[d.ID]; dup {
			problems = append(problems, fmt.Sprintf("devices[%d].id %q duplicated", i, d.ID))
		}
		seen[d.ID] = struct{}{}
		if !oneOf(d.Type, DeviceTypeSwitch, DeviceTypeMotion, DeviceTypeTemperature) {
			problems = append(problems, fmt.Sprintf("devices[%d].type %q must be %s, %s or %s", i, d.Type, DeviceTypeSwitch, DeviceTypeMotion, DeviceTypeTemperature))
		}
		if d.Interval < 0 {
			problems = append(problems, fmt.Sprintf("devices[%d].interval must not be negative", i))
		}
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%s", strings.Join(problems, "; ")),
			"Config", "Validate", "check fields")
	}
	return nil
}
