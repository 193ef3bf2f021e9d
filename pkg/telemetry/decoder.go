// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// ErrCRC is wrapped by decode errors caused by a checksum mismatch
var ErrCRC = errors.New("CRC mismatch")

// Decoder reassembles frames from a byte stream
type Decoder struct {
	state        int
	buffer       []byte
	escapeNext   bool
	length       int
	addressBytes int
	address      uint64
	crc          uint16

	now func() time.Time
}

// NewDecoder creates a decoder waiting for a START byte
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
		now:    time.Now,
	}
}

// Reset drops any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.escapeNext = false
	d.length = 0
	d.addressBytes = 0
	d.address = 0
	d.crc = 0
}

// Decode feeds data through the decoder and returns every complete frame.
// Decoding continues after a bad frame; the first error is returned.
func (d *Decoder) Decode(data []byte) ([]*Frame, error) {
	var frames []*Frame
	var firstErr error
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, firstErr
}

// DecodeByte processes one byte. It returns a frame once END completes a
// valid frame.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	// Framing bytes are never stuffed, so they resynchronize unconditionally
	switch b {
	case StartByte:
		d.Reset()
		d.state = stateLength
		return nil, nil
	case EndByte:
		return d.finish()
	case EscByte:
		if d.state != stateIdle {
			d.escapeNext = true
		}
		return nil, nil
	}

	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateIdle:
		return nil, nil

	case stateLength:
		if int(b) > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", b, MaxPayloadSize)
		}
		d.length = int(b)
		d.buffer = append(d.buffer, b)
		d.state = stateAddress

	case stateAddress:
		d.address |= uint64(b) << (d.addressBytes * 8)
		d.buffer = append(d.buffer, b)
		d.addressBytes++
		if d.addressBytes == AddressSize {
			if d.length == 0 {
				d.state = stateCRC1
			} else {
				d.state = statePayload
			}
		}

	case statePayload:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) == 1+AddressSize+d.length {
			d.state = stateCRC1
		}

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd

	default:
		d.Reset()
		return nil, fmt.Errorf("unexpected byte 0x%02X after CRC", b)
	}
	return nil, nil
}

func (d *Decoder) finish() (*Frame, error) {
	defer d.Reset()

	if d.state == stateIdle {
		return nil, nil
	}
	if d.state != stateEnd {
		return nil, fmt.Errorf("unexpected END byte in state %d", d.state)
	}

	calculated := CalculateCRC(d.buffer)
	if d.crc != calculated {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRC, calculated, d.crc)
	}

	msgType, fields, err := ParseMessage(d.buffer[1+AddressSize:])
	if err != nil {
		return nil, err
	}
	return &Frame{
		Address:  d.address,
		Type:     msgType,
		Fields:   fields,
		CRC:      d.crc,
		Received: d.now(),
	}, nil
}
