// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"bytes"
	"errors"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", nil, crcInitial},
		{"check value", []byte("123456789"), 0x29B1},
		{"single zero", []byte{0x00}, 0xE1F0},
		{"frame start", []byte{StartByte}, 0x7EA9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateCRC(tt.data); got != tt.want {
				t.Errorf("CalculateCRC() = 0x%04X, want 0x%04X", got, tt.want)
			}
		})
	}
}

// ============================================================
// Encode / Decode
// ============================================================

func decodeOne(t *testing.T, wire []byte) *Frame {
	t.Helper()
	frames, err := NewDecoder().Decode(wire)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("Decode() returned %d frames, want 1", len(frames))
	}
	return frames[0]
}

func TestSampleRoundTrip(t *testing.T) {
	taken := time.UnixMilli(1735689600123)

	tests := []struct {
		name string
		temp measurement.Measurement
	}{
		{"power-on default", measurement.Of(85)},
		{"negative", measurement.Of(-10.125)},
		{"absent", measurement.Absent()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := NewEncoder(0x0102030405060708).EncodeSample(Sample{Temperature: tt.temp, Time: taken})
			if err != nil {
				t.Fatalf("EncodeSample() error = %v", err)
			}
			if wire[0] != StartByte || wire[len(wire)-1] != EndByte {
				t.Errorf("frame not delimited: % X", wire)
			}

			f := decodeOne(t, wire)
			if f.Address != 0x0102030405060708 {
				t.Errorf("Address = %016X", f.Address)
			}
			s, err := f.Sample()
			if err != nil {
				t.Fatalf("Sample() error = %v", err)
			}
			if s.Temperature != tt.temp {
				t.Errorf("Temperature = %v, want %v", s.Temperature, tt.temp)
			}
			if s.Sequence != 1 {
				t.Errorf("Sequence = %d, want 1", s.Sequence)
			}
			if !s.Time.Equal(taken) {
				t.Errorf("Time = %v, want %v", s.Time, taken)
			}
		})
	}
}

func TestEncoderNumbersSamples(t *testing.T) {
	e := NewEncoder(AddressBroadcast)
	d := NewDecoder()

	for want := uint64(1); want <= 3; want++ {
		wire, err := e.EncodeSample(Sample{Temperature: measurement.Of(20)})
		if err != nil {
			t.Fatalf("EncodeSample() error = %v", err)
		}
		frames, err := d.Decode(wire)
		if err != nil || len(frames) != 1 {
			t.Fatalf("Decode() = %d frames, %v", len(frames), err)
		}
		s, _ := frames[0].Sample()
		if s.Sequence != want {
			t.Errorf("Sequence = %d, want %d", s.Sequence, want)
		}
	}
}

func TestLinkStateRoundTrip(t *testing.T) {
	hw := net.HardwareAddr{0x28, 0xcd, 0xc1, 0x00, 0x00, 0x01}
	states := []link.State{
		link.Up(netip.MustParsePrefix("192.168.4.2/24"), hw),
		link.Down(),
	}

	for _, want := range states {
		wire, err := NewEncoder(1).EncodeLinkState(want)
		if err != nil {
			t.Fatalf("EncodeLinkState() error = %v", err)
		}
		got, err := decodeOne(t, wire).LinkState()
		if err != nil {
			t.Fatalf("LinkState() error = %v", err)
		}
		if got.String() != want.String() {
			t.Errorf("LinkState() = %v, want %v", got, want)
		}
	}
}

func TestStuffingSpecialAddressBytes(t *testing.T) {
	// Every framing byte appears in the address
	address := uint64(0x7E7F7D00_7E7F7D00)

	wire, err := AppendFrame(nil, address, MsgSample, SampleFields(Sample{Temperature: measurement.Of(1)}))
	if err != nil {
		t.Fatalf("AppendFrame() error = %v", err)
	}

	inner := wire[1 : len(wire)-1]
	for i, b := range inner {
		if b == StartByte || b == EndByte {
			t.Fatalf("unescaped framing byte 0x%02X at %d", b, i)
		}
	}

	unstuffed, err := UnstuffBytes(inner)
	if err != nil {
		t.Fatalf("UnstuffBytes() error = %v", err)
	}
	if got := CalculateCRC(unstuffed[:len(unstuffed)-2]); got != uint16(unstuffed[len(unstuffed)-2])<<8|uint16(unstuffed[len(unstuffed)-1]) {
		t.Errorf("trailing CRC does not match content")
	}

	if f := decodeOne(t, wire); f.Address != address {
		t.Errorf("Address = %016X, want %016X", f.Address, address)
	}
}

func TestUnstuffIncompleteEscape(t *testing.T) {
	if _, err := UnstuffBytes([]byte{0x01, EscByte}); err == nil {
		t.Error("UnstuffBytes() accepted a trailing escape")
	}
}

// ============================================================
// Decoder Errors
// ============================================================

func TestDecoderRejectsCorruptCRC(t *testing.T) {
	wire, _ := NewEncoder(1).EncodeSample(Sample{Temperature: measurement.Of(21.5)})
	corrupt := append([]byte(nil), wire...)
	// Flip a bit inside the address, which is never a framing byte here
	corrupt[3] ^= 0x01

	frames, err := NewDecoder().Decode(corrupt)
	if !errors.Is(err, ErrCRC) {
		t.Errorf("Decode() error = %v, want CRC mismatch", err)
	}
	if len(frames) != 0 {
		t.Errorf("Decode() returned %d frames from a corrupt frame", len(frames))
	}
}

func TestDecoderResynchronizes(t *testing.T) {
	good, _ := NewEncoder(1).EncodeSample(Sample{Temperature: measurement.Of(22)})

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x11, EndByte, 0x22})
	stream.Write(good[:5]) // truncated frame
	stream.Write(good)

	frames, _ := NewDecoder().Decode(stream.Bytes())
	if len(frames) != 1 {
		t.Fatalf("Decode() returned %d frames, want 1", len(frames))
	}
	if s, _ := frames[0].Sample(); s.Temperature.String() != "22.0" {
		t.Errorf("Temperature = %v, want 22.0", s.Temperature)
	}
}

func TestDecoderInvalidLength(t *testing.T) {
	_, err := NewDecoder().Decode([]byte{StartByte, MaxPayloadSize + 1})
	if err == nil {
		t.Error("Decode() accepted an oversized length")
	}
}

func TestPayloadTooLarge(t *testing.T) {
	fields := map[int]interface{}{0: strings.Repeat("x", MaxPayloadSize)}
	if _, err := AppendFrame(nil, 0, MsgSample, fields); err == nil {
		t.Error("AppendFrame() accepted an oversized payload")
	}
}

// ============================================================
// Formatting
// ============================================================

func TestFormatFrame(t *testing.T) {
	wire, _ := NewEncoder(0xAB).EncodeSample(Sample{Temperature: measurement.Absent(), Sequence: 7})
	f := decodeOne(t, wire)

	got := FormatFrame(f)
	for _, want := range []string{"SAMPLE", "addr=00000000000000AB", "seq=7", "temperature=--"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatFrame() = %q, missing %q", got, want)
		}
	}

	if got := FormatMessageType(0x99); got != "UNKNOWN_0x99" {
		t.Errorf("FormatMessageType(0x99) = %q", got)
	}
}
