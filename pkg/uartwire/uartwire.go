// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package uartwire implements a 1-Wire bus master on a plain UART.
//
// TX and RX are tied to the 1-Wire data line through an open-drain buffer.
// A reset is a 0xF0 byte at 9600 baud: a device answering with a presence
// pulse corrupts the echo. Every data bit is one byte at 115200 baud: 0xFF
// for a 1 or read slot, 0x00 for a 0. A device answering a read slot with 0
// pulls the line low and the echo is no longer 0xFF.
package uartwire

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"periph.io/x/conn/v3/onewire"
)

const (
	resetBaud = 9600
	dataBaud  = 115200

	resetPulse = 0xF0
	slotOne    = 0xFF
	slotZero   = 0x00

	readTimeout = 100 * time.Millisecond
)

var (
	// ErrNoPresence is returned when no device answers the reset pulse
	ErrNoPresence = errors.New("uartwire: no presence pulse")

	// ErrBusShorted is returned when the data line is held low
	ErrBusShorted = errors.New("uartwire: bus held low")

	// ErrTimeout is returned when the UART does not echo a slot
	ErrTimeout = errors.New("uartwire: echo timeout")
)

// Port is the subset of serial.Port the bus master needs
type Port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Bus is a 1-Wire bus master on a UART
type Bus struct {
	mu   sync.Mutex
	name string
	port Port
	baud int
}

// Open opens the named serial device as a 1-Wire bus
func Open(name string) (*Bus, error) {
	port, err := serial.Open(name, uartMode(dataBaud))
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}
	return &Bus{name: name, port: port, baud: dataBaud}, nil
}

// NewBus wraps an already configured port running at 115200 baud
func NewBus(name string, port Port) *Bus {
	return &Bus{name: name, port: port, baud: dataBaud}
}

func uartMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func (b *Bus) String() string {
	return fmt.Sprintf("uartwire(%s)", b.name)
}

// Close closes the underlying port
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port.Close()
}

// Tx resets the bus, writes w and then reads len(r) bytes.
//
// A UART cannot drive a strong pullup, so power is ignored. Parasite-powered
// sensors need an external pullup transistor on this adapter.
func (b *Bus) Tx(w, r []byte, power onewire.Pullup) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reset(); err != nil {
		return err
	}
	if len(w) > 0 {
		if _, err := b.exchange(encodeSlots(w)); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	if len(r) > 0 {
		slots := make([]byte, len(r)*8)
		for i := range slots {
			slots[i] = slotOne
		}
		echo, err := b.exchange(slots)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		decodeSlots(echo, r)
	}
	return nil
}

// Search implements onewire.Bus. Only a single device on a dedicated bus is
// supported, so ROM enumeration is not implemented.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	return nil, errors.New("uartwire: search not supported")
}

func (b *Bus) reset() error {
	if err := b.setBaud(resetBaud); err != nil {
		return err
	}
	echo, err := b.exchange([]byte{resetPulse})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := b.setBaud(dataBaud); err != nil {
		return err
	}

	switch echo[0] {
	case resetPulse:
		return ErrNoPresence
	case 0x00:
		return ErrBusShorted
	}
	return nil
}

func (b *Bus) setBaud(baud int) error {
	if b.baud == baud {
		return nil
	}
	if err := b.port.SetMode(uartMode(baud)); err != nil {
		return fmt.Errorf("set baud %d: %w", baud, err)
	}
	b.baud = baud
	return nil
}

// exchange writes slots and collects one echo byte per slot
func (b *Bus) exchange(slots []byte) ([]byte, error) {
	if err := b.port.ResetInputBuffer(); err != nil {
		return nil, err
	}
	if _, err := b.port.Write(slots); err != nil {
		return nil, err
	}

	echo := make([]byte, len(slots))
	got := 0
	for got < len(echo) {
		n, err := b.port.Read(echo[got:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrTimeout
		}
		got += n
	}
	return echo, nil
}

// encodeSlots expands bytes into one UART byte per bit, LSB first
func encodeSlots(data []byte) []byte {
	slots := make([]byte, 0, len(data)*8)
	for _, b := range data {
		for i := 0; i < 8; i++ {
			if b&(1<<i) != 0 {
				slots = append(slots, slotOne)
			} else {
				slots = append(slots, slotZero)
			}
		}
	}
	return slots
}

// decodeSlots folds read-slot echoes back into bytes
func decodeSlots(echo []byte, out []byte) {
	for i := range out {
		var v byte
		for bit := 0; bit < 8; bit++ {
			if echo[i*8+bit] == slotOne {
				v |= 1 << bit
			}
		}
		out[i] = v
	}
}

var _ onewire.Bus = (*Bus)(nil)
