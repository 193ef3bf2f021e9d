// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"encoding/binary"
	"fmt"

	"github.com/Thermoquad/quadtherm/pkg/link"
)

// Encoder builds frames for one source address
type Encoder struct {
	address uint64
	seq     uint64
	buf     []byte
}

// NewEncoder creates an encoder stamping frames with address
func NewEncoder(address uint64) *Encoder {
	return &Encoder{address: address, buf: make([]byte, 0, MaxFrameSize)}
}

// EncodeSample frames s, numbering it when s.Sequence is zero. The returned
// slice is valid until the next call.
func (e *Encoder) EncodeSample(s Sample) ([]byte, error) {
	if s.Sequence == 0 {
		e.seq++
		s.Sequence = e.seq
	}
	return e.encode(MsgSample, SampleFields(s))
}

// EncodeLinkState frames a link state. The returned slice is valid until the
// next call.
func (e *Encoder) EncodeLinkState(state link.State) ([]byte, error) {
	return e.encode(MsgLinkState, LinkStateFields(state))
}

func (e *Encoder) encode(msgType uint8, fields map[int]interface{}) ([]byte, error) {
	frame, err := AppendFrame(e.buf[:0], e.address, msgType, fields)
	if err != nil {
		return nil, err
	}
	e.buf = frame
	return frame, nil
}

// AppendFrame appends a complete stuffed frame to dst
func AppendFrame(dst []byte, address uint64, msgType uint8, fields map[int]interface{}) ([]byte, error) {
	body, err := encodeMessage(msgType, fields)
	if err != nil {
		return dst, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}
	if len(body) > MaxPayloadSize {
		return dst, fmt.Errorf("CBOR payload too large: %d bytes (max %d)", len(body), MaxPayloadSize)
	}

	var data [MaxFrameSize]byte
	data[0] = uint8(len(body))
	binary.LittleEndian.PutUint64(data[1:1+AddressSize], address)
	n := 1 + AddressSize + copy(data[1+AddressSize:], body)

	crc := CalculateCRC(data[:n])
	data[n] = byte(crc >> 8)
	data[n+1] = byte(crc)
	n += 2

	dst = append(dst, StartByte)
	dst = appendStuffed(dst, data[:n])
	dst = append(dst, EndByte)
	return dst, nil
}

// appendStuffed escapes START, END and ESC as ESC, b^EscXor
func appendStuffed(dst, data []byte) []byte {
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			dst = append(dst, EscByte, b^EscXor)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// UnstuffBytes reverses byte stuffing
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		switch {
		case escapeNext:
			result = append(result, b^EscXor)
			escapeNext = false
		case b == EscByte:
			escapeNext = true
		default:
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}
	return result, nil
}
