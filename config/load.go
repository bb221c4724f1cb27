package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/CalebLauder/rakan-backend/errors"
)

// Load reads path, applies environment overrides and validates. An empty
// path yields defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", fmt.Sprintf("read %s", path))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", fmt.Sprintf("parse %s", path))
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers RAKAN_* variables over cfg. Unset variables leave the
// file value untouched.
func applyEnv(cfg *Config) {
	envString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	envString("RAKAN_NAMESPACE", &cfg.Namespace)
	envString("RAKAN_TRANSPORT", &cfg.Transport)
	envString("RAKAN_LOG_LEVEL", &cfg.Log.Level)
	envString("RAKAN_LOG_FORMAT", &cfg.Log.Format)
	envString("RAKAN_NATS_URL", &cfg.NATS.URL)
	envString("RAKAN_NATS_TOKEN", &cfg.NATS.Token)
	envString("RAKAN_NATS_USERNAME", &cfg.NATS.Username)
	envString("RAKAN_NATS_PASSWORD", &cfg.NATS.Password)
	envString("RAKAN_MQTT_BROKER_URL", &cfg.MQTT.BrokerURL)
	envString("RAKAN_MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	envString("RAKAN_MQTT_USERNAME", &cfg.MQTT.Username)
	envString("RAKAN_MQTT_PASSWORD", &cfg.MQTT.Password)
	envString("RAKAN_DECISION_MODE", &cfg.Decision.Mode)
	envString("RAKAN_DECISION_ENDPOINT", &cfg.Decision.Endpoint)
	envString("RAKAN_STORE_BACKEND", &cfg.Store.Backend)
	envString("RAKAN_REDIS_ADDR", &cfg.Store.Redis.Addr)
	envString("RAKAN_REDIS_PASSWORD", &cfg.Store.Redis.Password)
	envInt("RAKAN_REDIS_DB", &cfg.Store.Redis.DB)
	envBool("RAKAN_GATEWAY_ENABLED", &cfg.Gateway.Enabled)
	envInt("RAKAN_GATEWAY_PORT", &cfg.Gateway.Port)
	envBool("RAKAN_METRICS_ENABLED", &cfg.Metrics.Enabled)
	envInt("RAKAN_METRICS_PORT", &cfg.Metrics.Port)
}
