// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/quadtherm/internal/config"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "quadtherm",
	Short: "DS18B20 temperature node with a TCP responder",
	Long: `Quadtherm - samples a DS18B20 temperature sensor over a 1-Wire bus and
serves the next reading to TCP clients once the wireless link is up.

Sensor bus:
  UART:      --bus uart --port /dev/ttyUSB0
  Simulated: --bus sim

Each TCP connection to the responder receives one JSON record and is closed:
  {"temperature":21.5}   or   {"temperature":null}

The WiFi passphrase is read from the QUADTHERM_WIFI_PASSWORD environment
variable, or prompted interactively if not set. A --password flag is
intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")
}

// loadConfig reads --config and applies the persistent flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
