package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CalebLauder/rakan-backend/config"
)

// Build information, set at link time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "rakan"

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Smart-home event processing backend",
	Long: `Rakan consumes sensor events from a message broker, resolves them
into device commands with a guaranteed fallback, persists device state
and an append-only processing log, and serves both over an HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the CLI. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
}

// loadConfig reads the file named by --config, applies flag overrides
// and installs the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	setupLogger(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
