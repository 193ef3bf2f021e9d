// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
)

// Frame is a decoded telemetry frame
type Frame struct {
	Address uint64
	Type    uint8
	Fields  map[int]interface{}
	CRC     uint16

	Received time.Time
}

// Sample is one measurement as sent on the uplink
type Sample struct {
	Temperature measurement.Measurement
	Sequence    uint64
	Time        time.Time
}

// SampleFields returns the CBOR map for s
func SampleFields(s Sample) map[int]interface{} {
	var temp interface{}
	if c, ok := s.Temperature.Celsius(); ok {
		temp = c
	}
	fields := map[int]interface{}{
		KeyTemperature: temp,
		KeySequence:    s.Sequence,
	}
	if !s.Time.IsZero() {
		fields[KeyTimestamp] = uint64(s.Time.UnixMilli())
	}
	return fields
}

// Sample extracts a sample from a MsgSample frame
func (f *Frame) Sample() (Sample, error) {
	if f.Type != MsgSample {
		return Sample{}, fmt.Errorf("frame type 0x%02X is not a sample", f.Type)
	}

	var s Sample
	if _, present := f.Fields[KeyTemperature]; !present {
		return Sample{}, fmt.Errorf("sample without temperature key")
	}
	if c, ok := GetMapFloat(f.Fields, KeyTemperature); ok {
		s.Temperature = measurement.Of(float32(c))
	} else {
		s.Temperature = measurement.Absent()
	}
	s.Sequence, _ = GetMapUint(f.Fields, KeySequence)
	if ms, ok := GetMapUint(f.Fields, KeyTimestamp); ok {
		s.Time = time.UnixMilli(int64(ms))
	}
	return s, nil
}

// LinkStateFields returns the CBOR map for a link state
func LinkStateFields(state link.State) map[int]interface{} {
	if !state.IsUp() {
		return map[int]interface{}{KeyLinkUp: false}
	}
	return map[int]interface{}{
		KeyLinkUp:       true,
		KeyAddress:      state.Address().String(),
		KeyHardwareAddr: state.HardwareAddr().String(),
	}
}

// LinkState extracts a link state from a MsgLinkState frame
func (f *Frame) LinkState() (link.State, error) {
	if f.Type != MsgLinkState {
		return link.State{}, fmt.Errorf("frame type 0x%02X is not a link state", f.Type)
	}

	up, ok := GetMapBool(f.Fields, KeyLinkUp)
	if !ok {
		return link.State{}, fmt.Errorf("link state without up key")
	}
	if !up {
		return link.Down(), nil
	}

	var addr netip.Prefix
	if s, ok := GetMapString(f.Fields, KeyAddress); ok {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return link.State{}, fmt.Errorf("link address: %w", err)
		}
		addr = p
	}
	var hw net.HardwareAddr
	if s, ok := GetMapString(f.Fields, KeyHardwareAddr); ok && s != "" {
		mac, err := net.ParseMAC(s)
		if err != nil {
			return link.State{}, fmt.Errorf("link hardware address: %w", err)
		}
		hw = mac
	}
	return link.Up(addr, hw), nil
}
