// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
)

func sampleFrame(t *testing.T, address, seq uint64, m measurement.Measurement) *Frame {
	t.Helper()
	wire, err := AppendFrame(nil, address, MsgSample, SampleFields(Sample{Temperature: m, Sequence: seq}))
	if err != nil {
		t.Fatalf("AppendFrame() error = %v", err)
	}
	return decodeOne(t, wire)
}

// ============================================================
// Validation
// ============================================================

func TestValidateSample(t *testing.T) {
	tests := []struct {
		name string
		temp measurement.Measurement
		want int
	}{
		{"power-on value", measurement.Of(85), 0},
		{"minimum", measurement.Of(MinTemperature), 0},
		{"maximum", measurement.Of(MaxTemperature), 0},
		{"absent", measurement.Absent(), 0},
		{"too cold", measurement.Of(-60), 1},
		{"too hot", measurement.Of(127.9375), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateSample(Sample{Temperature: tt.temp})
			if len(got) != tt.want {
				t.Fatalf("ValidateSample() = %v, want %d anomalies", got, tt.want)
			}
			if tt.want > 0 && got[0].Type != AnomalyTemperatureRange {
				t.Errorf("Type = %v, want %v", got[0].Type, AnomalyTemperatureRange)
			}
		})
	}
}

// ============================================================
// Statistics
// ============================================================

func TestStatisticsCountsFrames(t *testing.T) {
	s := NewStatistics()

	s.Update(sampleFrame(t, 1, 1, measurement.Of(21.5)), nil)
	s.Update(sampleFrame(t, 1, 2, measurement.Absent()), nil)

	wire, _ := NewEncoder(1).EncodeLinkState(link.Down())
	s.Update(decodeOne(t, wire), nil)

	s.Update(nil, fmt.Errorf("%w: expected 0x0000, got 0x0001", ErrCRC))
	s.Update(nil, fmt.Errorf("unexpected END byte"))

	checks := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"Frames", s.Frames, 3},
		{"Samples", s.Samples, 2},
		{"AbsentSamples", s.AbsentSamples, 1},
		{"LinkStates", s.LinkStates, 1},
		{"CRCErrors", s.CRCErrors, 1},
		{"DecodeErrors", s.DecodeErrors, 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestStatisticsSequence(t *testing.T) {
	s := NewStatistics()

	if a := s.Update(sampleFrame(t, 1, 5, measurement.Of(20)), nil); len(a) != 0 {
		t.Errorf("first sample anomalies = %v, want none", a)
	}
	if a := s.Update(sampleFrame(t, 1, 6, measurement.Of(20)), nil); len(a) != 0 {
		t.Errorf("consecutive sample anomalies = %v, want none", a)
	}

	a := s.Update(sampleFrame(t, 1, 9, measurement.Of(20)), nil)
	if len(a) != 1 || a[0].Type != AnomalySequenceGap {
		t.Fatalf("gap anomalies = %v, want one sequence gap", a)
	}
	if s.LostSamples != 2 {
		t.Errorf("LostSamples = %d, want 2", s.LostSamples)
	}

	// Another sender has its own sequence
	if a := s.Update(sampleFrame(t, 2, 1, measurement.Of(20)), nil); len(a) != 0 {
		t.Errorf("second sender anomalies = %v, want none", a)
	}

	a = s.Update(sampleFrame(t, 1, 1, measurement.Of(20)), nil)
	if len(a) != 1 || a[0].Type != AnomalySequenceReset {
		t.Fatalf("restart anomalies = %v, want one sequence reset", a)
	}
	if s.Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", s.Restarts)
	}
}

func TestStatisticsOutOfRange(t *testing.T) {
	s := NewStatistics()

	a := s.Update(sampleFrame(t, 1, 1, measurement.Of(150)), nil)
	if len(a) != 1 || a[0].Type != AnomalyTemperatureRange {
		t.Fatalf("anomalies = %v, want one temperature range", a)
	}
	if s.OutOfRange != 1 {
		t.Errorf("OutOfRange = %d, want 1", s.OutOfRange)
	}
}

func TestStatisticsMalformed(t *testing.T) {
	s := NewStatistics()

	f := &Frame{Type: MsgSample, Fields: map[int]interface{}{KeySequence: uint64(1)}}
	a := s.Update(f, nil)
	if len(a) != 1 || a[0].Type != AnomalyMalformed {
		t.Fatalf("anomalies = %v, want one malformed", a)
	}
	if s.Malformed != 1 || s.Samples != 0 {
		t.Errorf("Malformed = %d, Samples = %d, want 1, 0", s.Malformed, s.Samples)
	}
}

func TestStatisticsResetAndString(t *testing.T) {
	s := NewStatistics()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	s.now = func() time.Time { return now }
	s.Reset()

	s.Update(sampleFrame(t, 1, 1, measurement.Of(20)), nil)
	s.Update(sampleFrame(t, 1, 4, measurement.Of(20)), nil)
	now = start.Add(2 * time.Second)

	out := s.String()
	for _, want := range []string{"Frames:", "Sequence Gaps:", "2 samples lost", "1.0 frames/sec"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}

	s.Reset()
	if s.Frames != 0 || s.SequenceGaps != 0 || !s.StartTime.Equal(now) {
		t.Errorf("Reset() left Frames = %d, SequenceGaps = %d, StartTime = %v", s.Frames, s.SequenceGaps, s.StartTime)
	}
	// History is gone, so the next sample is not a restart
	if a := s.Update(sampleFrame(t, 1, 1, measurement.Of(20)), nil); len(a) != 0 {
		t.Errorf("anomalies after Reset() = %v, want none", a)
	}
}
