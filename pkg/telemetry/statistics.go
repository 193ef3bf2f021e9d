// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Statistics tracks frame counts and anomalies across senders.
// It is safe for concurrent use.
type Statistics struct {
	mu sync.Mutex

	StartTime time.Time

	Frames        uint64
	Samples       uint64
	AbsentSamples uint64
	LinkStates    uint64
	CRCErrors     uint64
	DecodeErrors  uint64
	Malformed     uint64
	OutOfRange    uint64
	SequenceGaps  uint64
	LostSamples   uint64
	Restarts      uint64

	lastSeq map[uint64]uint64
	now     func() time.Time
}

// NewStatistics creates a tracker starting now
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
		lastSeq:   make(map[uint64]uint64),
		now:       time.Now,
	}
}

// Update records one decoder result and returns the anomalies found in f
func (s *Statistics) Update(f *Frame, decodeErr error) []ValidationError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRC) {
			s.CRCErrors++
		} else {
			s.DecodeErrors++
		}
	}
	if f == nil {
		return nil
	}

	s.Frames++
	switch f.Type {
	case MsgLinkState:
		s.LinkStates++
		if _, err := f.LinkState(); err != nil {
			s.Malformed++
			return []ValidationError{{Type: AnomalyMalformed, Message: err.Error()}}
		}
		return nil

	case MsgSample:
		sample, err := f.Sample()
		if err != nil {
			s.Malformed++
			return []ValidationError{{Type: AnomalyMalformed, Message: err.Error()}}
		}
		s.Samples++
		if !sample.Temperature.Present() {
			s.AbsentSamples++
		}

		anomalies := ValidateSample(sample)
		if len(anomalies) > 0 {
			s.OutOfRange++
		}
		if a := s.checkSequence(f.Address, sample.Sequence); a != nil {
			anomalies = append(anomalies, *a)
		}
		return anomalies
	}
	return nil
}

// checkSequence tracks the per-sender sequence number. Caller holds s.mu.
func (s *Statistics) checkSequence(addr, seq uint64) *ValidationError {
	last, seen := s.lastSeq[addr]
	s.lastSeq[addr] = seq
	if !seen {
		return nil
	}

	switch {
	case seq == last+1:
		return nil
	case seq <= last:
		s.Restarts++
		return &ValidationError{
			Type:    AnomalySequenceReset,
			Message: fmt.Sprintf("sequence restarted at %d after %d", seq, last),
		}
	default:
		lost := seq - last - 1
		s.SequenceGaps++
		s.LostSamples += lost
		return &ValidationError{
			Type:    AnomalySequenceGap,
			Message: fmt.Sprintf("%d samples lost between %d and %d", lost, last, seq),
		}
	}
}

// Reset clears every counter and the sequence history
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.StartTime = s.now()
	s.Frames, s.Samples, s.AbsentSamples, s.LinkStates = 0, 0, 0, 0
	s.CRCErrors, s.DecodeErrors, s.Malformed, s.OutOfRange = 0, 0, 0, 0
	s.SequenceGaps, s.LostSamples, s.Restarts = 0, 0, 0
	clear(s.lastSeq)
}

// String returns a formatted summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.now().Sub(s.StartTime)
	var rate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(s.Frames) / secs
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	fmt.Fprintf(&b, "Frames:          %8d\n", s.Frames)
	fmt.Fprintf(&b, "  Samples:       %8d (%d absent)\n", s.Samples, s.AbsentSamples)
	fmt.Fprintf(&b, "  Link States:   %8d\n", s.LinkStates)
	if s.CRCErrors > 0 {
		fmt.Fprintf(&b, "CRC Errors:      %8d\n", s.CRCErrors)
	}
	if s.DecodeErrors > 0 {
		fmt.Fprintf(&b, "Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.Malformed > 0 {
		fmt.Fprintf(&b, "Malformed:       %8d\n", s.Malformed)
	}
	if s.OutOfRange > 0 {
		fmt.Fprintf(&b, "Out of Range:    %8d\n", s.OutOfRange)
	}
	if s.SequenceGaps > 0 {
		fmt.Fprintf(&b, "Sequence Gaps:   %8d (%d samples lost)\n", s.SequenceGaps, s.LostSamples)
	}
	if s.Restarts > 0 {
		fmt.Fprintf(&b, "Restarts:        %8d\n", s.Restarts)
	}
	fmt.Fprintf(&b, "Frame Rate:      %8.1f frames/sec\n", rate)
	b.WriteString("================================\n")
	return b.String()
}
