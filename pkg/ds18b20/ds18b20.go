// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ds18b20

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/onewire"
)

// CRCError is returned when a scratchpad read fails its integrity check
type CRCError struct {
	Remainder  uint8
	Scratchpad [ScratchpadSize]byte
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("scratchpad CRC mismatch: remainder 0x%02X over % X", e.Remainder, e.Scratchpad[:])
}

// Dev is a DS18B20 addressed with SKIP ROM on a dedicated bus
type Dev struct {
	bus onewire.Bus
}

// New returns a driver for the sole sensor on bus
func New(bus onewire.Bus) *Dev {
	return &Dev{bus: bus}
}

func (d *Dev) String() string {
	return fmt.Sprintf("DS18B20{%s}", d.bus)
}

// StartConversion triggers a temperature conversion. The result is not
// available until ConversionTime has elapsed.
//
// The bus is left on strong pullup so parasite-powered sensors can draw the
// conversion current.
func (d *Dev) StartConversion() error {
	if err := d.bus.Tx([]byte{CmdSkipROM, CmdConvertT}, nil, onewire.StrongPullup); err != nil {
		return fmt.Errorf("start conversion: %w", err)
	}
	return nil
}

// ReadScratchpad reads the raw nine scratchpad bytes without validating them
func (d *Dev) ReadScratchpad() ([ScratchpadSize]byte, error) {
	var data [ScratchpadSize]byte
	if err := d.bus.Tx([]byte{CmdSkipROM, CmdReadScratchpad}, data[:], onewire.WeakPullup); err != nil {
		return data, fmt.Errorf("read scratchpad: %w", err)
	}
	return data, nil
}

// ReadTemperature reads the scratchpad and returns the last converted
// temperature in degrees Celsius. A corrupted read returns a *CRCError.
// No retry is attempted.
func (d *Dev) ReadTemperature() (float32, error) {
	data, err := d.ReadScratchpad()
	if err != nil {
		return 0, err
	}
	return Decode(data)
}

// Decode validates a scratchpad and converts its temperature register
func Decode(data [ScratchpadSize]byte) (float32, error) {
	if rem := CalculateCRC(data[:]); rem != 0 {
		return 0, &CRCError{Remainder: rem, Scratchpad: data}
	}
	raw := int16(uint16(data[scratchTempMSB])<<8 | uint16(data[scratchTempLSB]))
	return float32(raw) / 16, nil
}

// Encode builds a sealed scratchpad holding celsius in the temperature
// register and the power-on defaults everywhere else.
func Encode(celsius float32) [ScratchpadSize]byte {
	data := PowerOnScratchpad
	raw := int16(math.Round(float64(celsius) * 16))
	data[scratchTempLSB] = byte(uint16(raw))
	data[scratchTempMSB] = byte(uint16(raw) >> 8)
	Seal(&data)
	return data
}
