// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package display renders measurements and link status for a local viewer.
package display

import (
	"context"
	"errors"

	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
	"github.com/Thermoquad/quadtherm/pkg/pubsub"
)

// Quadrants are the four value slots on the measurement screen. Only B is
// populated by the sensor.
type Quadrants struct {
	A, B, C, D measurement.Measurement
}

// Renderer accepts display updates. Implementations should return promptly.
type Renderer interface {
	ShowMeasurements(q Quadrants)
	LinkResolved(state link.State)
}

// Run forwards every measurement from sub to r until ctx is done or the
// distributor closes. When gate is non-nil its resolution is forwarded too.
func Run(ctx context.Context, sub *pubsub.Subscription[measurement.Measurement], gate *link.Handoff, r Renderer) error {
	defer sub.Close()

	if gate != nil {
		go func() {
			if state, err := gate.Wait(ctx); err == nil {
				r.LinkResolved(state)
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
		r.ShowMeasurements(Quadrants{
			A: measurement.Absent(),
			B: m,
			C: measurement.Absent(),
			D: measurement.Absent(),
		})
	}
}
