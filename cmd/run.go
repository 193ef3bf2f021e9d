// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/quadtherm/internal/config"
	"github.com/Thermoquad/quadtherm/pkg/acquisition"
	"github.com/Thermoquad/quadtherm/pkg/display"
	"github.com/Thermoquad/quadtherm/pkg/ds18b20"
	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
	"github.com/Thermoquad/quadtherm/pkg/metrics"
	"github.com/Thermoquad/quadtherm/pkg/pubsub"
	"github.com/Thermoquad/quadtherm/pkg/responder"
	"github.com/Thermoquad/quadtherm/pkg/uplink"
)

var (
	runBus         string
	runPort        string
	runRadio       string
	runSSID        string
	runListenPort  int
	runDisplay     string
	runMetricsAddr string
	runUplinkURL   string
	runMQTTBroker  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the temperature node",
	Long: `Run the temperature node.

The acquisition loop samples the sensor once per interval and publishes each
reading (or null on a failed read) to every consumer. In parallel the link is
brought up; once it resolves Up the TCP responder starts on the listen port.
If the link resolves Down the node keeps sampling and displaying, but no
responder is started.

Stop with Ctrl+C, or 'q' in the TUI.`,
	RunE: runNode,
}

func init() {
	runCmd.Flags().StringVar(&runBus, "bus", "", "Sensor bus (uart, sim)")
	runCmd.Flags().StringVarP(&runPort, "port", "p", "", "Serial port for the uart bus (e.g., /dev/ttyUSB0)")
	runCmd.Flags().StringVar(&runRadio, "radio", "", "Radio (host, sim)")
	runCmd.Flags().StringVar(&runSSID, "ssid", "", "Network to join")
	runCmd.Flags().IntVarP(&runListenPort, "listen-port", "l", 0, "TCP responder port")
	runCmd.Flags().StringVarP(&runDisplay, "display", "d", "", "Display mode (tui, log, off)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	runCmd.Flags().StringVar(&runUplinkURL, "uplink-url", "", "WebSocket telemetry uplink URL (ws:// or wss://)")
	runCmd.Flags().StringVar(&runMQTTBroker, "mqtt-broker", "", "MQTT broker URL (e.g., tcp://localhost:1883)")

	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides file values with the flags that were set
func applyRunFlags(cfg *config.Config) error {
	if runBus != "" {
		cfg.Sensor.Bus = runBus
	}
	if runPort != "" {
		cfg.Sensor.Port = runPort
	}
	if runRadio != "" {
		cfg.Link.Radio = runRadio
	}
	if runSSID != "" {
		cfg.Link.SSID = runSSID
	}
	if runListenPort != 0 {
		cfg.Responder.Port = runListenPort
	}
	if runDisplay != "" {
		cfg.Display.Mode = runDisplay
	}
	if runMetricsAddr != "" {
		cfg.Metrics.Addr = runMetricsAddr
	}
	if runUplinkURL != "" {
		cfg.Uplink.WebSocket.URL = runUplinkURL
	}
	if runMQTTBroker != "" {
		cfg.Uplink.MQTT.Broker = runMQTTBroker
	}
	return cfg.Validate()
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}

	zl, err := newLogger(cfg.Log, cfg.Display.Mode == "tui")
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := zl.Sugar()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	passphrase := ""
	if cfg.Link.Radio == "host" && cfg.Link.SSID != "" {
		passphrase, err = GetPassword(wifiPasswordEnv, "WiFi passphrase")
		if err != nil {
			return err
		}
	}

	n, err := newNode(cfg, passphrase, logger)
	if err != nil {
		return err
	}

	err = n.run(ctx, stop)
	if cerr := n.Close(); cerr != nil {
		logger.Warnw("shutdown", "error", cerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

const (
	uplinkRetryInitial = time.Second
	uplinkRetryMax     = 30 * time.Second
)

// node holds everything the run command wires together
type node struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	dist    *pubsub.Channel[measurement.Measurement]
	metrics *metrics.Metrics
	gate    *link.Handoff

	loop      *acquisition.Loop
	bringup   *link.BringUp
	responder *responder.Responder

	renderer display.Renderer
	// uplinks are dialed by their forwarders once the link is up
	uplinks  map[string]uplink.Dialer

	closers []io.Closer
}

func newNode(cfg *config.Config, passphrase string, logger *zap.SugaredLogger) (n *node, err error) {
	n = &node{
		cfg:     cfg,
		logger:  logger,
		gate:    link.NewHandoff(),
		uplinks: make(map[string]uplink.Dialer),
	}
	defer func() {
		if err != nil {
			_ = n.Close()
		}
	}()

	if cfg.Metrics.Addr != "" {
		n.metrics = metrics.New(prometheus.NewRegistry())
	}

	bus, closer, err := OpenBus(cfg.Sensor)
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, closer)
	logger.Infow("sensor bus open", "bus", bus)

	n.dist = pubsub.New[measurement.Measurement](
		pubsub.WithCapacity(cfg.Distributor.Capacity),
		pubsub.WithMaxSubscribers(cfg.Distributor.MaxSubscribers),
	)

	n.loop = acquisition.New(ds18b20.New(bus), n.dist, acquisition.Config{
		Settle:   cfg.Sensor.Settle,
		Interval: cfg.Sensor.Interval,
	},
		acquisition.WithLogger(logger.Named("acquisition")),
		acquisition.WithMetrics(n.metrics),
	)

	power, err := link.ParsePowerPolicy(cfg.Link.Power)
	if err != nil {
		return nil, err
	}
	radio, stack := OpenRadio(cfg.Link)
	n.bringup = link.NewBringUp(radio, stack, link.Config{
		Network:        link.Network{SSID: cfg.Link.SSID, Passphrase: passphrase},
		Power:          power,
		JoinAttempts:   cfg.Link.JoinAttempts,
		BackoffInitial: cfg.Link.JoinBackoffInitial,
		BackoffMax:     cfg.Link.JoinBackoffMax,
		ConfigPoll:     cfg.Link.ConfigPoll,
		ConfigTimeout:  cfg.Link.ConfigTimeout,
	},
		link.WithLogger(logger.Named("link")),
		link.WithMetrics(n.metrics),
	)

	n.responder = responder.New(n.dist, responder.Config{
		Port:        cfg.Responder.Port,
		IdleTimeout: cfg.Responder.IdleTimeout,
	},
		responder.WithLogger(logger.Named("responder")),
		responder.WithMetrics(n.metrics),
	)

	if cfg.Display.Mode == "log" {
		n.renderer = display.NewLogRenderer(logger.Named("display"))
	}

	if ws := cfg.Uplink.WebSocket; ws.URL != "" {
		password := ""
		if ws.Username != "" {
			password, err = GetPassword(uplinkPasswordEnv, "Uplink password")
			if err != nil {
				return nil, err
			}
		}
		opts := uplink.WebSocketOptions{
			URL:         ws.URL,
			Username:    ws.Username,
			Password:    password,
			NoSSLVerify: ws.NoSSLVerify,
			Address:     ws.Address,
		}
		n.uplinks["websocket"] = func(ctx context.Context) (uplink.Sink, error) {
			return uplink.DialWebSocket(ctx, opts)
		}
	}

	if mq := cfg.Uplink.MQTT; mq.Broker != "" {
		n.uplinks["mqtt"] = func(context.Context) (uplink.Sink, error) {
			return uplink.DialMQTT(mq.Broker, mq.ClientID, mq.Topic)
		}
	}

	return n, nil
}

// run starts every task and waits for them. Consumers subscribe before the
// acquisition loop publishes its first reading.
func (n *node) run(ctx context.Context, stop context.CancelFunc) error {
	g, ctx := errgroup.WithContext(ctx)
	abort := func(err error) error {
		stop()
		_ = g.Wait()
		return err
	}

	renderer := n.renderer
	if n.cfg.Display.Mode == "tui" {
		tui := display.NewTUI(ctx)
		renderer = tui
		// Quitting the TUI stops the node
		g.Go(func() error {
			defer stop()
			return tui.Run(ctx)
		})
	}

	if renderer != nil {
		sub, err := n.dist.Subscribe()
		if err != nil {
			return abort(fmt.Errorf("display subscription: %w", err))
		}
		g.Go(func() error {
			return display.Run(ctx, sub, n.gate, renderer)
		})
	}

	for name, dial := range n.uplinks {
		sub, err := n.dist.Subscribe()
		if err != nil {
			return abort(fmt.Errorf("%s subscription: %w", name, err))
		}
		retry := backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(uplinkRetryInitial),
			backoff.WithMaxInterval(uplinkRetryMax),
			backoff.WithMaxElapsedTime(0),
		)
		f := &uplink.Forwarder{
			Name:    name,
			Dial:    dial,
			Backoff: retry,
			Logger:  n.logger.Named("uplink"),
			Metrics: n.metrics,
		}
		g.Go(func() error {
			return f.Run(ctx, sub, n.gate)
		})
	}

	if n.metrics != nil {
		g.Go(func() error {
			return n.serveMetrics(ctx)
		})
	}

	g.Go(func() error {
		defer n.dist.Close()
		return n.loop.Run(ctx)
	})

	g.Go(func() error {
		if err := n.bringup.Run(ctx, n.gate); err != nil {
			return err
		}
		return n.responder.ListenAndServe(ctx, n.gate)
	})

	return g.Wait()
}

func (n *node) serveMetrics(ctx context.Context) error {
	srv := &http.Server{
		Addr:              n.cfg.Metrics.Addr,
		Handler:           n.metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		n.logger.Infow("serving metrics", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases the sensor bus
func (n *node) Close() error {
	var err error
	for i := len(n.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, n.closers[i].Close())
	}
	n.closers = nil
	return err
}
