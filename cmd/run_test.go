// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Thermoquad/quadtherm/internal/config"
	"github.com/Thermoquad/quadtherm/pkg/ds18b20/ds18b20sim"
	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
)

// ============================================================================
// Flags
// ============================================================================

func TestApplyRunFlags(t *testing.T) {
	t.Cleanup(func() {
		runBus, runPort, runListenPort, runDisplay = "", "", 0, ""
	})

	runBus = "uart"
	runPort = "/dev/ttyUSB1"
	runListenPort = 4321
	runDisplay = "off"

	cfg := config.Default()
	if err := applyRunFlags(cfg); err != nil {
		t.Fatalf("applyRunFlags() error = %v", err)
	}
	if cfg.Sensor.Bus != "uart" || cfg.Sensor.Port != "/dev/ttyUSB1" {
		t.Errorf("Sensor = %+v, want uart on /dev/ttyUSB1", cfg.Sensor)
	}
	if cfg.Responder.Port != 4321 {
		t.Errorf("Responder.Port = %d, want 4321", cfg.Responder.Port)
	}
	if cfg.Display.Mode != "off" {
		t.Errorf("Display.Mode = %q, want off", cfg.Display.Mode)
	}
	// Unset flags keep the file values
	if cfg.Link.Radio != "sim" {
		t.Errorf("Link.Radio = %q, want sim", cfg.Link.Radio)
	}
}

func TestApplyRunFlagsValidates(t *testing.T) {
	t.Cleanup(func() { runBus = "" })

	runBus = "uart"
	cfg := config.Default()
	if err := applyRunFlags(cfg); err == nil {
		t.Error("applyRunFlags() accepted the uart bus without a port")
	}
}

// ============================================================================
// Wiring
// ============================================================================

func TestOpenBusSim(t *testing.T) {
	cfg := config.Default().Sensor
	cfg.SimTemperature = 21.5

	bus, closer, err := OpenBus(cfg)
	if err != nil {
		t.Fatalf("OpenBus() error = %v", err)
	}
	defer closer.Close()

	if _, ok := bus.(*ds18b20sim.Sensor); !ok {
		t.Errorf("OpenBus() = %T, want *ds18b20sim.Sensor", bus)
	}
}

func TestOpenRadio(t *testing.T) {
	cfg := config.Default().Link

	radio, stack := OpenRadio(cfg)
	if _, ok := radio.(*link.Sim); !ok {
		t.Errorf("OpenRadio(sim) radio = %T, want *link.Sim", radio)
	}
	if stack != radio.(link.Stack) {
		t.Error("OpenRadio(sim) returned a stack unrelated to the radio")
	}

	cfg.Radio = "host"
	cfg.Interface = "wlan1"
	radio, _ = OpenRadio(cfg)
	host, ok := radio.(*link.Host)
	if !ok {
		t.Fatalf("OpenRadio(host) radio = %T, want *link.Host", radio)
	}
	if host.Interface != "wlan1" {
		t.Errorf("Interface = %q, want wlan1", host.Interface)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		quiet   bool
		wantErr bool
	}{
		{"console", config.LogConfig{Level: "info", Format: "console"}, false, false},
		{"json", config.LogConfig{Level: "debug", Format: "json"}, false, false},
		{"quiet", config.LogConfig{Level: "info", Format: "console"}, true, false},
		{"bad level", config.LogConfig{Level: "loud", Format: "console"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := newLogger(tt.cfg, tt.quiet)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && logger == nil {
				t.Error("newLogger() returned nil logger")
			}
		})
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestNodeServesReadings(t *testing.T) {
	cfg := config.Default()
	cfg.Sensor.Settle = 10 * time.Millisecond
	cfg.Sensor.Interval = 10 * time.Millisecond
	cfg.Link.ConfigPoll = 10 * time.Millisecond
	cfg.Responder.Port = freePort(t)
	cfg.Display.Mode = "off"

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	n, err := newNode(cfg, "", zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("newNode() error = %v", err)
	}
	defer n.Close()

	done := make(chan error, 1)
	go func() { done <- n.run(ctx, stop) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Responder.Port))
	deadline := time.Now().Add(5 * time.Second)
	var raw []byte
	for {
		raw, err = fetchReport(addr, time.Second)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("fetchReport() error = %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	report, err := measurement.ParseReport(raw)
	if err != nil {
		t.Fatalf("ParseReport(%q) error = %v", raw, err)
	}
	if c, ok := report.Temperature.Celsius(); !ok || c != 85 {
		t.Errorf("temperature = %v, want 85.0", report.Temperature)
	}

	stop()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestNodeStartsWithUnreachableUplink(t *testing.T) {
	cfg := config.Default()
	cfg.Sensor.Settle = 10 * time.Millisecond
	cfg.Sensor.Interval = 10 * time.Millisecond
	cfg.Link.ConfigPoll = 10 * time.Millisecond
	cfg.Responder.Port = freePort(t)
	cfg.Display.Mode = "off"
	cfg.Uplink.WebSocket.URL = "ws://127.0.0.1:" + strconv.Itoa(freePort(t)) + "/telemetry"

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	n, err := newNode(cfg, "", zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("newNode() error = %v", err)
	}
	defer n.Close()

	done := make(chan error, 1)
	go func() { done <- n.run(ctx, stop) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Responder.Port))
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err = fetchReport(addr, time.Second); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("fetchReport() error = %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	stop()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return while the uplink was retrying")
	}
}

func TestNodeRadioInitFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Display.Mode = "off"
	cfg.Responder.Port = freePort(t)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	n, err := newNode(cfg, "", zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("newNode() error = %v", err)
	}
	defer n.Close()

	n.bringup = link.NewBringUp(&link.Sim{InitErr: errors.New("no firmware")}, link.NewSim(), link.Config{})

	err = n.run(ctx, stop)
	if !errors.Is(err, link.ErrRadioInit) {
		t.Errorf("run() error = %v, want ErrRadioInit", err)
	}
	if _, resolved := n.gate.Peek(); resolved {
		t.Error("handoff resolved after radio init failure")
	}
}
