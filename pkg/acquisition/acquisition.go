// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package acquisition runs the sensor sampling cycle and publishes one
// measurement per cycle to the distributor.
package acquisition

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Thermoquad/quadtherm/pkg/ds18b20"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
	"github.com/Thermoquad/quadtherm/pkg/metrics"
	"github.com/Thermoquad/quadtherm/pkg/pubsub"
)

// Default cycle timing
const (
	DefaultSettle   = time.Second
	DefaultInterval = time.Second
)

// Sensor is the part of the sensor driver the loop needs
type Sensor interface {
	StartConversion() error
	ReadTemperature() (float32, error)
}

// Config controls the cycle timing
type Config struct {
	// Settle is the wait between triggering a conversion and reading it back.
	// Values below ds18b20.ConversionTime are accepted for simulated sensors.
	Settle time.Duration
	// Interval is the wait after publishing before the next trigger
	Interval time.Duration
}

// Loop samples a sensor forever
type Loop struct {
	sensor  Sensor
	dist    *pubsub.Channel[measurement.Measurement]
	cfg     Config
	clock   clock.Clock
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	cycles  uint64
}

// Option configures a Loop
type Option func(*Loop)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithLogger sets the logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithMetrics records cycle outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// New creates a loop publishing readings of sensor to dist
func New(sensor Sensor, dist *pubsub.Channel[measurement.Measurement], cfg Config, opts ...Option) *Loop {
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	l := &Loop{
		sensor: sensor,
		dist:   dist,
		cfg:    cfg,
		clock:  clock.New(),
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run loops until ctx is cancelled. A failed read never ends the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Infow("acquisition started", "settle", l.cfg.Settle, "interval", l.cfg.Interval)
	for {
		if err := l.trigger(ctx); err != nil {
			return err
		}
		l.dist.Publish(l.read())
		l.cycles++

		if err := l.sleep(ctx, l.cfg.Interval); err != nil {
			return err
		}
	}
}

// Cycles returns the number of completed cycles. Only safe once Run returned.
func (l *Loop) Cycles() uint64 {
	return l.cycles
}

func (l *Loop) trigger(ctx context.Context) error {
	if err := l.sensor.StartConversion(); err != nil {
		// The read that follows fails too and publishes an absent value
		l.logger.Debugw("start conversion failed", "error", err)
	}
	return l.sleep(ctx, l.cfg.Settle)
}

func (l *Loop) read() measurement.Measurement {
	celsius, err := l.sensor.ReadTemperature()
	if err == nil {
		l.metrics.Reading(metrics.ResultOK, celsius)
		return measurement.Of(celsius)
	}

	var crcErr *ds18b20.CRCError
	if errors.As(err, &crcErr) {
		l.logger.Warnw("scratchpad integrity check failed", "remainder", crcErr.Remainder,
			"scratchpad", crcErr.Scratchpad)
		l.metrics.Reading(metrics.ResultCRCError, 0)
	} else {
		l.logger.Warnw("sensor read failed", "error", err)
		l.metrics.Reading(metrics.ResultBusError, 0)
	}
	return measurement.Absent()
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := l.clock.Timer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
