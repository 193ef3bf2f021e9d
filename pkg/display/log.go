// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"go.uber.org/zap"

	"github.com/Thermoquad/quadtherm/pkg/link"
)

// LogRenderer writes display updates to a logger, for headless runs
type LogRenderer struct {
	logger *zap.SugaredLogger
}

// NewLogRenderer creates a renderer logging to logger
func NewLogRenderer(logger *zap.SugaredLogger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) ShowMeasurements(q Quadrants) {
	r.logger.Infow("measurement", "a", q.A.String(), "b", q.B.String(), "c", q.C.String(), "d", q.D.String())
}

func (r *LogRenderer) LinkResolved(state link.State) {
	if state.IsUp() {
		r.logger.Infow("wifi up", "address", state.Address(), "hardware", state.HardwareAddr())
		return
	}
	r.logger.Warnw("wifi down")
}
