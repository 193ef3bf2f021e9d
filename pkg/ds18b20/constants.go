// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ds18b20 drives a single DS18B20 temperature sensor on a 1-Wire bus.
//
// Only one device is assumed on the bus, so every transaction is addressed with
// SKIP ROM. The bus reset that starts each transaction is performed by the
// onewire.Bus implementation.
package ds18b20

import "time"

// ROM commands
const (
	CmdSkipROM = 0xCC
)

// Function commands
const (
	CmdConvertT        = 0x44
	CmdReadScratchpad  = 0xBE
	CmdWriteScratchpad = 0x4E
)

// Scratchpad layout
const (
	ScratchpadSize = 9

	scratchTempLSB = 0
	scratchTempMSB = 1
	scratchCRC     = 8
)

// ConversionTime is the worst case conversion time at 12-bit resolution.
const ConversionTime = 750 * time.Millisecond

// PowerOnScratchpad is the scratchpad content of a sensor that has not
// completed a conversion since power-up (85.0 °C).
var PowerOnScratchpad = [ScratchpadSize]byte{0x50, 0x05, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10, 0x1C}
