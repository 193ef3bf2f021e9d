// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
	"periph.io/x/conn/v3/onewire"

	"github.com/Thermoquad/quadtherm/internal/config"
	"github.com/Thermoquad/quadtherm/pkg/ds18b20/ds18b20sim"
	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/uartwire"
)

const (
	wifiPasswordEnv   = "QUADTHERM_WIFI_PASSWORD"
	uplinkPasswordEnv = "QUADTHERM_UPLINK_PASSWORD"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenBus opens the 1-Wire bus selected by the sensor configuration
func OpenBus(cfg config.SensorConfig) (onewire.Bus, io.Closer, error) {
	switch cfg.Bus {
	case "uart":
		bus, err := uartwire.Open(cfg.Port)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open 1-Wire bus on %s: %w", cfg.Port, err)
		}
		return bus, bus, nil
	case "sim":
		sim := ds18b20sim.New(cfg.SimTemperature)
		sim.SetDrift(cfg.SimDrift)
		return sim, nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown sensor bus %q", cfg.Bus)
}

// OpenRadio returns the radio and network stack selected by the link
// configuration
func OpenRadio(cfg config.LinkConfig) (link.Radio, link.Stack) {
	if cfg.Radio == "host" {
		h := link.NewHost(cfg.Interface)
		return h, h
	}
	s := link.NewSim()
	return s, s
}

// GetPassword retrieves a secret from envVar or prompts the user for it
func GetPassword(envVar, prompt string) (string, error) {
	if pw := os.Getenv(envVar); pw != "" {
		return pw, nil
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil && password == "" {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
