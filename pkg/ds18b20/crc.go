// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ds18b20

import "periph.io/x/conn/v3/onewire"

// CalculateCRC computes the Dallas/Maxim CRC-8 of data: polynomial
// x^8+x^5+x^4+1 (0x8C reflected), fed least significant bit first from a
// zero register. periph's onewire table implements exactly this CRC. Running
// it over a scratchpad including its trailing CRC byte yields zero when the
// data is intact.
func CalculateCRC(data []byte) uint8 {
	return onewire.CalcCRC(data)
}

// Seal writes the CRC of the first eight scratchpad bytes into the ninth.
func Seal(scratchpad *[ScratchpadSize]byte) {
	scratchpad[scratchCRC] = CalculateCRC(scratchpad[:scratchCRC])
}
