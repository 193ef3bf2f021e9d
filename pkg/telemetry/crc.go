// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

// crcTable holds the CCITT remainder of every high byte
var crcTable = func() (table [256]uint16) {
	for i := range table {
		r := uint16(i) << 8
		for range 8 {
			carry := r&0x8000 != 0
			r <<= 1
			if carry {
				r ^= crcPolynomial
			}
		}
		table[i] = r
	}
	return table
}()

// CalculateCRC computes the CRC-16-CCITT (0x1021, initial 0xFFFF, no final
// XOR) of data a byte at a time
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
