// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uartwire

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/quadtherm/pkg/ds18b20"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/onewire"
)

// ============================================================
// Loopback Port
// ============================================================

// loopbackPort echoes every byte like a UART with TX tied to RX and emulates
// a DS18B20 answering SKIP ROM + READ SCRATCHPAD.
type loopbackPort struct {
	baud       int
	present    bool
	mute       bool
	scratchpad [ds18b20.ScratchpadSize]byte

	echo     []byte
	rxBits   []bool
	commands []byte
	txQueue  []bool
	modes    []int
}

func newLoopbackPort() *loopbackPort {
	return &loopbackPort{baud: dataBaud, present: true, scratchpad: ds18b20.PowerOnScratchpad}
}

func (p *loopbackPort) SetMode(mode *serial.Mode) error {
	p.baud = mode.BaudRate
	p.modes = append(p.modes, mode.BaudRate)
	return nil
}

func (p *loopbackPort) SetReadTimeout(t time.Duration) error { return nil }

func (p *loopbackPort) ResetInputBuffer() error {
	p.echo = p.echo[:0]
	return nil
}

func (p *loopbackPort) Close() error { return nil }

func (p *loopbackPort) Read(buf []byte) (int, error) {
	n := copy(buf, p.echo)
	p.echo = p.echo[n:]
	return n, nil
}

func (p *loopbackPort) Write(data []byte) (int, error) {
	if p.mute {
		return len(data), nil
	}
	for _, b := range data {
		if p.baud == resetBaud {
			p.rxBits, p.commands, p.txQueue = nil, nil, nil
			if p.present {
				p.echo = append(p.echo, 0xE0)
			} else {
				p.echo = append(p.echo, b)
			}
			continue
		}

		if len(p.txQueue) > 0 && b == slotOne {
			bit := p.txQueue[0]
			p.txQueue = p.txQueue[1:]
			if bit {
				p.echo = append(p.echo, 0xFF)
			} else {
				p.echo = append(p.echo, 0xF8)
			}
			continue
		}

		p.echo = append(p.echo, b)
		p.rxBits = append(p.rxBits, b == slotOne)
		if len(p.rxBits) == 8 {
			var v byte
			for i, bit := range p.rxBits {
				if bit {
					v |= 1 << i
				}
			}
			p.rxBits = p.rxBits[:0]
			p.commands = append(p.commands, v)
			if bytes.Equal(p.commands, []byte{ds18b20.CmdSkipROM, ds18b20.CmdReadScratchpad}) {
				for _, sb := range p.scratchpad {
					for i := 0; i < 8; i++ {
						p.txQueue = append(p.txQueue, sb&(1<<i) != 0)
					}
				}
			}
		}
	}
	return len(data), nil
}

// ============================================================
// Slot Encoding Tests
// ============================================================

func TestEncodeSlots_LSBFirst(t *testing.T) {
	got := encodeSlots([]byte{0xCC})
	want := []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeSlots(0xCC) = % X, want % X", got, want)
	}
}

func TestDecodeSlots_AnyPulledSlotIsZero(t *testing.T) {
	echo := []byte{0xFF, 0xFE, 0x00, 0xFF, 0xF8, 0xFF, 0xFF, 0x7F}
	out := make([]byte, 1)
	decodeSlots(echo, out)
	if out[0] != 0x69 {
		t.Errorf("decodeSlots = 0x%02X, want 0x69", out[0])
	}
}

// ============================================================
// Bus Tests
// ============================================================

func TestTx_ResetSwitchesBaud(t *testing.T) {
	port := newLoopbackPort()
	bus := NewBus("loop", port)

	if err := bus.Tx([]byte{ds18b20.CmdSkipROM, ds18b20.CmdConvertT}, nil, onewire.StrongPullup); err != nil {
		t.Fatalf("Tx error: %v", err)
	}
	if len(port.modes) != 2 || port.modes[0] != resetBaud || port.modes[1] != dataBaud {
		t.Errorf("baud switches = %v, want [%d %d]", port.modes, resetBaud, dataBaud)
	}
	if !bytes.Equal(port.commands, []byte{0xCC, 0x44}) {
		t.Errorf("device received % X, want CC 44", port.commands)
	}
}

func TestTx_NoPresence(t *testing.T) {
	port := newLoopbackPort()
	port.present = false

	err := NewBus("loop", port).Tx([]byte{0xCC, 0x44}, nil, onewire.WeakPullup)
	if !errors.Is(err, ErrNoPresence) {
		t.Errorf("expected ErrNoPresence, got %v", err)
	}
}

func TestTx_EchoTimeout(t *testing.T) {
	port := newLoopbackPort()
	port.mute = true

	err := NewBus("loop", port).Tx([]byte{0xCC, 0x44}, nil, onewire.WeakPullup)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestTx_DriverReadsScratchpad(t *testing.T) {
	port := newLoopbackPort()
	port.scratchpad = ds18b20.Encode(-10.125)

	temp, err := ds18b20.New(NewBus("loop", port)).ReadTemperature()
	if err != nil {
		t.Fatalf("ReadTemperature error: %v", err)
	}
	if temp != -10.125 {
		t.Errorf("ReadTemperature = %v, want -10.125", temp)
	}
}
