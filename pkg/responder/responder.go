// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package responder serves the next measurement to one TCP client at a time.
//
// Each accepted connection subscribes to the distributor, waits for the next
// published measurement, writes it as {"temperature":<number|null>} and is
// closed. Nothing is read from the client.
package responder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
	"github.com/Thermoquad/quadtherm/pkg/metrics"
	"github.com/Thermoquad/quadtherm/pkg/pubsub"
)

// Defaults
const (
	DefaultPort        = 1234
	DefaultIdleTimeout = 10 * time.Second

	payloadSize = 512

	acceptRetryInitial = 5 * time.Millisecond
	acceptRetryMax     = time.Second
)

// Config controls the listener and session timeout
type Config struct {
	Port        int
	IdleTimeout time.Duration
}

// Responder owns the listener and the payload buffer
type Responder struct {
	dist    *pubsub.Channel[measurement.Measurement]
	cfg     Config
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	payload []byte
}

// Option configures a Responder
type Option func(*Responder)

// WithLogger sets the logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(r *Responder) { r.logger = logger }
}

// WithMetrics records session outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Responder) { r.metrics = m }
}

// New creates a responder reading from dist
func New(dist *pubsub.Channel[measurement.Measurement], cfg Config, opts ...Option) *Responder {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	r := &Responder{
		dist:    dist,
		cfg:     cfg,
		logger:  zap.NewNop().Sugar(),
		payload: make([]byte, 0, payloadSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListenAndServe waits for the link handoff and serves once it resolved Up.
// A Down link leaves the responder idle and returns nil.
func (r *Responder) ListenAndServe(ctx context.Context, gate *link.Handoff) error {
	state, err := gate.Wait(ctx)
	if err != nil {
		return err
	}
	if !state.IsUp() {
		r.logger.Warnw("link down, responder not started")
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("", strconv.Itoa(r.cfg.Port)))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", r.cfg.Port, err)
	}
	r.logger.Infow("listening", "address", state.Address().Addr(), "port", r.cfg.Port)
	return r.Serve(ctx, ln)
}

// Serve accepts connections on ln one at a time until ctx is done. It closes ln.
// Accept failures such as descriptor exhaustion are logged and retried with
// backoff; only a closed listener ends the loop early.
func (r *Responder) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	retry := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(acceptRetryInitial),
		backoff.WithMaxInterval(acceptRetryMax),
		backoff.WithMaxElapsedTime(0),
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			delay := retry.NextBackOff()
			r.logger.Warnw("accept failed", "error", err, "retry_in", delay)
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}
		retry.Reset()

		err = r.session(ctx, conn)
		switch {
		case err == nil:
			r.metrics.Session(metrics.ResultServed)
		case errors.Is(err, pubsub.ErrClosed):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			r.metrics.Session(metrics.ResultFailed)
			r.logger.Warnw("session aborted", "remote", conn.RemoteAddr(), "error", err)
		}
	}
}

// session serves a single connection and always closes it
func (r *Responder) session(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	r.logger.Debugw("accepted", "remote", conn.RemoteAddr())

	deadline := time.Now().Add(r.cfg.IdleTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	m, err := r.next(ctx, deadline)
	if err != nil {
		return err
	}

	r.payload = measurement.AppendReport(r.payload[:0], m)
	if _, err := conn.Write(r.payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	r.logger.Debugw("served", "remote", conn.RemoteAddr(), "temperature", m)
	return nil
}

// next waits for a measurement published after the connection was accepted
func (r *Responder) next(ctx context.Context, deadline time.Time) (measurement.Measurement, error) {
	sub, err := r.dist.Subscribe()
	if err != nil {
		return measurement.Measurement{}, err
	}
	defer sub.Close()

	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	m, err := sub.Next(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		return m, fmt.Errorf("no measurement within %v: %w", r.cfg.IdleTimeout, err)
	}
	return m, err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
