package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CalebLauder/rakan-backend/config"
	"github.com/CalebLauder/rakan-backend/device"
	"github.com/CalebLauder/rakan-backend/natsclient"
	"github.com/CalebLauder/rakan-backend/transport"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a fleet of simulated devices",
	Long: `Starts one endpoint per device in the configuration. Each endpoint
holds its own broker connection, publishes readings on its cadence and
applies commands addressed to it. With no devices configured, a demo
fleet of one switch, one motion sensor and one temperature sensor runs.`,
	RunE: func(*cobra.Command, []string) error {
		return runSimulate()
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}

func defaultFleet() []config.DeviceConfig {
	return []config.DeviceConfig{
		{ID: "light-1", Type: config.DeviceTypeSwitch},
		{ID: "motion-1", Type: config.DeviceTypeMotion},
		{ID: "temp-1", Type: config.DeviceTypeTemperature},
	}
}

func runSimulate() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fleet := cfg.Devices
	if len(fleet) == 0 {
		fleet = defaultFleet()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subjects := transport.NewSubjects(cfg.Namespace)

	endpoints := make([]*device.Endpoint, 0, len(fleet))
	for _, dc := range fleet {
		behavior, err := buildBehavior(dc)
		if err != nil {
			return err
		}

		tr, err := buildDeviceTransport(cfg, dc.ID)
		if err != nil {
			return err
		}

		endpoint := device.NewEndpoint(behavior, tr, subjects)
		if err := endpoint.Start(ctx); err != nil {
			return fmt.Errorf("start device %s: %w", dc.ID, err)
		}
		endpoints = append(endpoints, endpoint)

		slog.Info("device running", "deviceId", dc.ID, "type", dc.Type)
	}

	slog.Info("simulated fleet running", "devices", len(endpoints))
	<-ctx.Done()
	slog.Info("shutdown signal received")

	for _, endpoint := range endpoints {
		if err := endpoint.Stop(10 * time.Second); err != nil {
			slog.Warn("device stop failed", "error", err)
		}
	}
	return nil
}

func buildBehavior(dc config.DeviceConfig) (device.Behavior, error) {
	interval := dc.Interval.Std()

	switch dc.Type {
	case config.DeviceTypeSwitch:
		opts := []device.SwitchOption{}
		if interval > 0 {
			opts = append(opts, device.WithHeartbeat(interval))
		}
		return device.NewSmartSwitch(dc.ID, opts...), nil

	case config.DeviceTypeMotion:
		opts := []device.MotionOption{}
		if interval > 0 {
			opts = append(opts, device.WithMotionInterval(interval))
		}
		return device.NewMotionSensor(dc.ID, opts...), nil

	case config.DeviceTypeTemperature:
		opts := []device.TemperatureOption{}
		if interval > 0 {
			opts = append(opts, device.WithTemperatureInterval(interval))
		}
		return device.NewTemperatureSensor(dc.ID, opts...), nil

	default:
		return nil, fmt.Errorf("unknown device type %q", dc.Type)
	}
}

// buildDeviceTransport dials one broker connection per device, mirroring
// how real endpoints behave.
func buildDeviceTransport(cfg *config.Config, deviceID string) (transport.Transport, error) {
	clientID := fmt.Sprintf("%s-%s", cfg.Namespace, deviceID)

	if cfg.Transport == config.TransportMQTT {
		opts := []transport.MQTTOption{}
		if cfg.MQTT.Username != "" {
			opts = append(opts, transport.WithMQTTCredentials(cfg.MQTT.Username, cfg.MQTT.Password))
		}
		return transport.NewMQTT(cfg.MQTT.BrokerURL, clientID, opts...), nil
	}

	clientOpts := []natsclient.ClientOption{
		natsclient.WithName(clientID),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
	}
	if cfg.NATS.Token != "" {
		clientOpts = append(clientOpts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.Username != "" {
		clientOpts = append(clientOpts, natsclient.WithUserCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}

	nc, err := natsclient.NewClient(cfg.NATS.URL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("build NATS client for %s: %w", deviceID, err)
	}
	return transport.NewNATS(nc), nil
}
