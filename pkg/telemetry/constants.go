// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry frames measurements and link events for uplinks.
//
// Frame layout on the wire:
//
//	START | stuffed(length | address[8] LE | cbor | crc16 BE) | END
//
// The CBOR body is a two element array [type, {key: value}]. The CRC is
// CRC-16-CCITT over length, address and body.
package telemetry

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Size limits
const (
	MaxPayloadSize = 114
	AddressSize    = 8
	MaxFrameSize   = 1 + AddressSize + MaxPayloadSize + 2
)

// CRC-16-CCITT
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// AddressBroadcast addresses every listener
const AddressBroadcast = 0x0000000000000000

// Message types
const (
	MsgSample    = 0x40
	MsgLinkState = 0x41
)

// Sample keys
const (
	KeyTemperature = 0
	KeySequence    = 1
	KeyTimestamp   = 2
)

// Link state keys
const (
	KeyLinkUp       = 0
	KeyAddress      = 1
	KeyHardwareAddr = 2
)

// Decoder states
const (
	stateIdle = iota
	stateLength
	stateAddress
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
