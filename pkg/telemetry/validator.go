// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "fmt"

// Measurable range of the sensor in degrees Celsius
const (
	MinTemperature = -55
	MaxTemperature = 125
)

// AnomalyType classifies a suspicious frame
type AnomalyType int

const (
	AnomalyTemperatureRange AnomalyType = iota
	AnomalySequenceGap
	AnomalySequenceReset
	AnomalyMalformed
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyTemperatureRange:
		return "temperature_range"
	case AnomalySequenceGap:
		return "sequence_gap"
	case AnomalySequenceReset:
		return "sequence_reset"
	case AnomalyMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("anomaly(%d)", int(a))
	}
}

// ValidationError describes one anomaly in a well-formed frame
type ValidationError struct {
	Type    AnomalyType
	Message string
}

func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateSample checks the values a sample carries. Sequence continuity
// needs history and is checked by Statistics.
func ValidateSample(s Sample) []ValidationError {
	c, ok := s.Temperature.Celsius()
	if !ok || (c >= MinTemperature && c <= MaxTemperature) {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyTemperatureRange,
		Message: fmt.Sprintf("temperature %.4f outside %d..%d", c, MinTemperature, MaxTemperature),
	}}
}
