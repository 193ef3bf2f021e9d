// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package uplink forwards measurements from the distributor to remote sinks.
package uplink

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
	"github.com/Thermoquad/quadtherm/pkg/metrics"
	"github.com/Thermoquad/quadtherm/pkg/pubsub"
)

// Sink delivers measurements somewhere
type Sink interface {
	Send(ctx context.Context, m measurement.Measurement) error
	Close() error
}

// LinkReporter is implemented by sinks that also report the link outcome
type LinkReporter interface {
	SendLinkState(ctx context.Context, state link.State) error
}

// Dialer opens a connection to a sink
type Dialer func(ctx context.Context) (Sink, error)

// Connect dials until it succeeds or b gives up. A nil b retries forever.
func Connect(ctx context.Context, name string, dial Dialer, b backoff.BackOff, logger *zap.SugaredLogger) (Sink, error) {
	if b == nil {
		b = backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(0))
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return backoff.RetryNotifyWithData(
		func() (Sink, error) { return dial(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			logger.Warnw("uplink dial failed", "sink", name, "error", err, "retry_in", next)
		},
	)
}

// Forwarder copies every measurement from a subscription to a sink.
// Failed sends are logged and counted; the forwarder keeps going.
//
// Without a Sink the forwarder waits for the link, then connects through
// Dial and owns the resulting sink.
type Forwarder struct {
	Name    string
	Sink    Sink
	Dial    Dialer
	Backoff backoff.BackOff
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
}

// Run forwards until ctx is done or the distributor closes, then closes
// the subscription. A sink passed in is left open.
func (f *Forwarder) Run(ctx context.Context, sub *pubsub.Subscription[measurement.Measurement], gate *link.Handoff) error {
	defer sub.Close()

	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	sink := f.Sink
	if sink == nil {
		if gate != nil {
			state, err := gate.Wait(ctx)
			if err != nil {
				return nil
			}
			if !state.IsUp() {
				logger.Warnw("link down, uplink not started", "sink", f.Name)
				return nil
			}
		}
		s, err := Connect(ctx, f.Name, f.Dial, f.Backoff, logger)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		defer s.Close()
		logger.Infow("uplink connected", "sink", f.Name)
		sink = s
	}

	if lr, ok := sink.(LinkReporter); ok && gate != nil {
		go func() {
			state, err := gate.Wait(ctx)
			if err != nil {
				return
			}
			if err := lr.SendLinkState(ctx, state); err != nil && ctx.Err() == nil {
				logger.Warnw("link state not delivered", "sink", f.Name, "error", err)
			}
		}()
	}

	for {
		m, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, pubsub.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := sink.Send(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.Metrics.UplinkDropped()
			logger.Warnw("measurement not delivered", "sink", f.Name, "error", err)
		}
	}
}
