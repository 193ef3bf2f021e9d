// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Thermoquad/quadtherm/pkg/metrics"
)

// Bring-up defaults
const (
	DefaultBackoffInitial = 100 * time.Millisecond
	DefaultBackoffMax     = 10 * time.Second
	DefaultConfigPoll     = 100 * time.Millisecond
)

// Config controls the bring-up
type Config struct {
	Network Network
	Power   PowerPolicy

	// JoinAttempts bounds the join step. 0 retries until success.
	JoinAttempts   int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// ConfigPoll is the address configuration polling interval
	ConfigPoll time.Duration
	// ConfigTimeout bounds the wait for address configuration. 0 waits forever.
	ConfigTimeout time.Duration
}

// BringUp walks INIT, RADIO-UP, JOINING and CONFIG-WAIT and resolves the
// handoff with Up or Down
type BringUp struct {
	radio   Radio
	stack   Stack
	cfg     Config
	clock   clock.Clock
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// Option configures a BringUp
type Option func(*BringUp)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(b *BringUp) { b.clock = c }
}

// WithLogger sets the logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(b *BringUp) { b.logger = logger }
}

// WithMetrics records join attempts and the link outcome
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *BringUp) { b.metrics = m }
}

// NewBringUp creates a bring-up for radio and stack
func NewBringUp(radio Radio, stack Stack, cfg Config, opts ...Option) *BringUp {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = DefaultBackoffInitial
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = max(DefaultBackoffMax, cfg.BackoffInitial)
	}
	if cfg.ConfigPoll <= 0 {
		cfg.ConfigPoll = DefaultConfigPoll
	}
	b := &BringUp{
		radio:  radio,
		stack:  stack,
		cfg:    cfg,
		clock:  clock.New(),
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run brings the link up and resolves h exactly once. It returns an error
// wrapping ErrRadioInit when the radio cannot be initialized, or ctx.Err()
// when cancelled; h stays unresolved in both cases.
func (b *BringUp) Run(ctx context.Context, h *Handoff) error {
	b.logger.Infow("initializing radio", "power", b.cfg.Power)
	if err := b.radio.Init(ctx, b.cfg.Power); err != nil {
		return fmt.Errorf("%w: %w", ErrRadioInit, err)
	}

	state, err := b.establish(ctx)
	if err != nil {
		return err
	}

	b.metrics.LinkUp(state.IsUp())
	if state.IsUp() {
		b.logger.Infow("link up", "address", state.Address(), "hardware", state.HardwareAddr())
	} else {
		b.logger.Warnw("link down")
	}
	return h.Resolve(state)
}

func (b *BringUp) establish(ctx context.Context) (State, error) {
	if err := b.join(ctx); err != nil {
		if ctx.Err() != nil {
			return State{}, ctx.Err()
		}
		b.logger.Errorw("giving up on join", "ssid", b.cfg.Network.SSID, "error", err)
		return Down(), nil
	}
	b.logger.Infow("joined network", "ssid", b.cfg.Network.SSID)

	status, err := b.waitConfig(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return State{}, ctx.Err()
		}
		b.logger.Errorw("address configuration did not complete", "error", err)
		return Down(), nil
	}

	if !status.ConfigUp || !status.LinkUp {
		return Down(), nil
	}
	return Up(status.Address, status.HardwareAddr), nil
}

func (b *BringUp) join(ctx context.Context) error {
	var policy backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(b.cfg.BackoffInitial),
		backoff.WithMaxInterval(b.cfg.BackoffMax),
		backoff.WithMaxElapsedTime(0),
		backoff.WithClockProvider(b.clock),
	)
	if b.cfg.JoinAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(b.cfg.JoinAttempts-1))
	}
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := b.radio.Join(ctx, b.cfg.Network)
		b.metrics.JoinAttempt(err == nil)
		return err
	}
	notify := func(err error, next time.Duration) {
		status := -1
		var joinErr *JoinError
		if errors.As(err, &joinErr) {
			status = joinErr.Status
		}
		b.logger.Warnw("join failed", "attempt", attempt, "status", status, "retry_in", next, "error", err)
	}

	return backoff.RetryNotifyWithTimer(op, policy, notify, &clockTimer{clock: b.clock})
}

// waitConfig polls the stack until an address is configured
func (b *BringUp) waitConfig(ctx context.Context) (Status, error) {
	var deadline <-chan time.Time
	if b.cfg.ConfigTimeout > 0 {
		t := b.clock.Timer(b.cfg.ConfigTimeout)
		defer t.Stop()
		deadline = t.C
	}

	ticker := b.clock.Ticker(b.cfg.ConfigPoll)
	defer ticker.Stop()

	for {
		status, err := b.stack.Status(ctx)
		if err != nil {
			b.logger.Debugw("stack status failed", "error", err)
		} else if status.ConfigUp {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-deadline:
			return Status{}, fmt.Errorf("no address after %v", b.cfg.ConfigTimeout)
		case <-ticker.C:
		}
	}
}

// clockTimer drives backoff waits from a clock.Clock
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.Timer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
