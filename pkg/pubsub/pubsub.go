// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pubsub provides a broadcast channel with a bounded buffer per
// subscriber.
//
// Publishing never blocks. When a subscriber has Capacity unread values, the
// oldest one is discarded to make room for the new value, so a slow consumer
// always sees the most recent values in publish order.
package pubsub

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is the per-subscriber buffer size
const DefaultCapacity = 4

var (
	// ErrClosed is returned when reading from a closed channel or subscription
	ErrClosed = errors.New("pubsub: closed")

	// ErrTooManySubscribers is returned when the subscriber limit is reached
	ErrTooManySubscribers = errors.New("pubsub: too many subscribers")
)

// Channel fans published values out to every subscription. It is safe for
// concurrent use by any number of publishers and subscribers.
type Channel[T any] struct {
	mu             sync.Mutex
	capacity       int
	maxSubscribers int
	subs           map[*Subscription[T]]struct{}
	closed         bool
	published      uint64
}

// Option configures a Channel
type Option func(*options)

type options struct {
	capacity       int
	maxSubscribers int
}

// WithCapacity sets the per-subscriber buffer size
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithMaxSubscribers limits the number of live subscriptions (0 = unlimited)
func WithMaxSubscribers(n int) Option {
	return func(o *options) {
		o.maxSubscribers = n
	}
}

// New creates a broadcast channel
func New[T any](opts ...Option) *Channel[T] {
	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	return &Channel[T]{
		capacity:       o.capacity,
		maxSubscribers: o.maxSubscribers,
		subs:           make(map[*Subscription[T]]struct{}),
	}
}

// Publish delivers v to every current subscription without blocking
func (c *Channel[T]) Publish(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.published++
	for s := range c.subs {
		s.push(v, c.capacity)
	}
}

// Subscribe creates a read cursor that starts at the next published value
func (c *Channel[T]) Subscribe() (*Subscription[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.maxSubscribers > 0 && len(c.subs) >= c.maxSubscribers {
		return nil, ErrTooManySubscribers
	}
	s := &Subscription[T]{
		ch:     c,
		buf:    make([]T, 0, c.capacity),
		notify: make(chan struct{}, 1),
	}
	c.subs[s] = struct{}{}
	return s, nil
}

// Subscribers returns the number of live subscriptions
func (c *Channel[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Published returns the number of values published so far
func (c *Channel[T]) Published() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

// Close detaches every subscription. Blocked readers return ErrClosed once
// their buffered values are consumed.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for s := range c.subs {
		s.closed = true
		s.wake()
		delete(c.subs, s)
	}
}

// Subscription is an independent read cursor on a Channel
type Subscription[T any] struct {
	ch      *Channel[T]
	buf     []T
	notify  chan struct{}
	dropped uint64
	closed  bool
}

// push appends v, discarding the oldest value when full. Caller holds ch.mu.
func (s *Subscription[T]) push(v T, capacity int) {
	if len(s.buf) >= capacity {
		copy(s.buf, s.buf[1:])
		s.buf = s.buf[:len(s.buf)-1]
		s.dropped++
	}
	s.buf = append(s.buf, v)
	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// TryNext returns the next buffered value without waiting
func (s *Subscription[T]) TryNext() (T, bool) {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return s.pop()
}

func (s *Subscription[T]) pop() (T, bool) {
	var zero T
	if len(s.buf) == 0 {
		return zero, false
	}
	v := s.buf[0]
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = zero
	s.buf = s.buf[:len(s.buf)-1]
	return v, true
}

// Next waits for the next value in publish order
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	for {
		s.ch.mu.Lock()
		v, ok := s.pop()
		closed := s.closed
		s.ch.mu.Unlock()

		if ok {
			return v, nil
		}
		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Pending returns the number of buffered unread values
func (s *Subscription[T]) Pending() int {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return len(s.buf)
}

// Dropped returns how many values were discarded because the buffer was full
func (s *Subscription[T]) Dropped() uint64 {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription from its channel
func (s *Subscription[T]) Close() {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(s.ch.subs, s)
	s.wake()
}
