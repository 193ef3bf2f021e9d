// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the quadtherm YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/quadtherm/pkg/ds18b20"
)

type Config struct {
	Sensor      SensorConfig      `yaml:"sensor"`
	Distributor DistributorConfig `yaml:"distributor"`
	Link        LinkConfig        `yaml:"link"`
	Responder   ResponderConfig   `yaml:"responder"`
	Display     DisplayConfig     `yaml:"display"`
	Uplink      UplinkConfig      `yaml:"uplink"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

type SensorConfig struct {
	// Bus is "uart" or "sim"
	Bus      string        `yaml:"bus"`
	Port     string        `yaml:"port"`
	Settle   time.Duration `yaml:"settle"`
	Interval time.Duration `yaml:"interval"`
	// SimTemperature is the starting value of the simulated sensor
	SimTemperature float32 `yaml:"sim_temperature"`
	SimDrift       float32 `yaml:"sim_drift"`
}

type DistributorConfig struct {
	Capacity       int `yaml:"capacity"`
	MaxSubscribers int `yaml:"max_subscribers"`
}

type LinkConfig struct {
	// Radio is "host" or "sim"
	Radio     string `yaml:"radio"`
	Interface string `yaml:"interface"`
	SSID      string `yaml:"ssid"`
	Power     string `yaml:"power"`

	JoinAttempts       int           `yaml:"join_attempts"`
	JoinBackoffInitial time.Duration `yaml:"join_backoff_initial"`
	JoinBackoffMax     time.Duration `yaml:"join_backoff_max"`
	ConfigPoll         time.Duration `yaml:"config_poll"`
	ConfigTimeout      time.Duration `yaml:"config_timeout"`
}

type ResponderConfig struct {
	Port        int           `yaml:"port"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type DisplayConfig struct {
	// Mode is "tui", "log" or "off"
	Mode string `yaml:"mode"`
}

type UplinkConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

type WebSocketConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
	// Address is stamped on every telemetry frame
	Address uint64 `yaml:"address"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type MetricsConfig struct {
	// Addr is empty to disable the metrics endpoint
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File receives log output instead of stderr
	File string `yaml:"file"`
}

// Default returns the configuration used without a file
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads path, applies defaults and validates. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sensor.Bus == "" {
		c.Sensor.Bus = "sim"
	}
	if c.Sensor.Settle == 0 {
		c.Sensor.Settle = time.Second
	}
	if c.Sensor.Interval == 0 {
		c.Sensor.Interval = time.Second
	}
	if c.Sensor.SimTemperature == 0 {
		c.Sensor.SimTemperature = 85
	}
	if c.Distributor.Capacity == 0 {
		c.Distributor.Capacity = 4
	}
	if c.Distributor.MaxSubscribers == 0 {
		c.Distributor.MaxSubscribers = 4
	}
	if c.Link.Radio == "" {
		c.Link.Radio = "sim"
	}
	if c.Link.Interface == "" {
		c.Link.Interface = "wlan0"
	}
	if c.Link.Power == "" {
		c.Link.Power = "powersave"
	}
	if c.Link.JoinBackoffInitial == 0 {
		c.Link.JoinBackoffInitial = 100 * time.Millisecond
	}
	if c.Link.JoinBackoffMax == 0 {
		c.Link.JoinBackoffMax = 10 * time.Second
	}
	if c.Link.ConfigPoll == 0 {
		c.Link.ConfigPoll = 100 * time.Millisecond
	}
	if c.Responder.Port == 0 {
		c.Responder.Port = 1234
	}
	if c.Responder.IdleTimeout == 0 {
		c.Responder.IdleTimeout = 10 * time.Second
	}
	if c.Display.Mode == "" {
		c.Display.Mode = "log"
	}
	if c.Uplink.MQTT.ClientID == "" {
		c.Uplink.MQTT.ClientID = "quadtherm"
	}
	if c.Uplink.MQTT.Topic == "" {
		c.Uplink.MQTT.Topic = "quadtherm/temperature"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks values after defaults and flag overrides were applied
func (c *Config) Validate() error {
	switch c.Sensor.Bus {
	case "sim":
	case "uart":
		if c.Sensor.Port == "" {
			return fmt.Errorf("sensor.port is required for the uart bus")
		}
	default:
		return fmt.Errorf("sensor.bus must be uart or sim, got %q", c.Sensor.Bus)
	}
	if c.Sensor.Settle < 0 || c.Sensor.Interval < 0 {
		return fmt.Errorf("sensor.settle and sensor.interval must not be negative")
	}
	if c.Sensor.Bus == "uart" && c.Sensor.Settle < ds18b20.ConversionTime {
		return fmt.Errorf("sensor.settle must be at least %v for the uart bus, got %v",
			ds18b20.ConversionTime, c.Sensor.Settle)
	}
	if c.Distributor.Capacity < 1 {
		return fmt.Errorf("distributor.capacity must be at least 1")
	}
	if c.Distributor.MaxSubscribers < 0 {
		return fmt.Errorf("distributor.max_subscribers must not be negative")
	}
	switch c.Link.Radio {
	case "sim", "host":
	default:
		return fmt.Errorf("link.radio must be host or sim, got %q", c.Link.Radio)
	}
	switch c.Link.Power {
	case "powersave", "performance":
	default:
		return fmt.Errorf("link.power must be powersave or performance, got %q", c.Link.Power)
	}
	if c.Link.JoinAttempts < 0 {
		return fmt.Errorf("link.join_attempts must not be negative")
	}
	if c.Link.ConfigTimeout < 0 {
		return fmt.Errorf("link.config_timeout must not be negative")
	}
	if c.Responder.Port < 1 || c.Responder.Port > 65535 {
		return fmt.Errorf("responder.port out of range: %d", c.Responder.Port)
	}
	switch c.Display.Mode {
	case "tui", "log", "off":
	default:
		return fmt.Errorf("display.mode must be tui, log or off, got %q", c.Display.Mode)
	}
	if need := c.Subscribers(); c.Distributor.MaxSubscribers > 0 && need > c.Distributor.MaxSubscribers {
		return fmt.Errorf("distributor.max_subscribers is %d but display, uplinks and responder need %d",
			c.Distributor.MaxSubscribers, need)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Subscribers counts the distributor subscriptions a node holds at once:
// the display, each uplink and one responder session.
func (c *Config) Subscribers() int {
	n := 1
	if c.Display.Mode != "off" {
		n++
	}
	if c.Uplink.WebSocket.URL != "" {
		n++
	}
	if c.Uplink.MQTT.Broker != "" {
		n++
	}
	return n
}
