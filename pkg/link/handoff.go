// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyResolved is returned when a handoff is resolved twice
var ErrAlreadyResolved = errors.New("link: handoff already resolved")

// Handoff carries exactly one State from the bring-up task to its readers.
// Any number of readers may wait; all of them observe the same value.
type Handoff struct {
	mu    sync.Mutex
	done  chan struct{}
	state State
}

// NewHandoff creates an unresolved handoff
func NewHandoff() *Handoff {
	return &Handoff{done: make(chan struct{})}
}

// Resolve publishes s. Only the first call succeeds.
func (h *Handoff) Resolve(s State) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return ErrAlreadyResolved
	default:
	}
	h.state = s
	close(h.done)
	return nil
}

// Wait blocks until the handoff is resolved or ctx is done
func (h *Handoff) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		return h.state, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Done is closed once the handoff is resolved
func (h *Handoff) Done() <-chan struct{} {
	return h.done
}

// Peek returns the state without blocking
func (h *Handoff) Peek() (State, bool) {
	select {
	case <-h.done:
		return h.state, true
	default:
		return State{}, false
	}
}
