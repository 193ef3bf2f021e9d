// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ds18b20sim simulates a single DS18B20 behind a onewire.Bus.
package ds18b20sim

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/Thermoquad/quadtherm/pkg/ds18b20"
	"periph.io/x/conn/v3/onewire"
)

// ErrUnknownCommand is returned for transactions the simulator does not model
var ErrUnknownCommand = errors.New("ds18b20sim: unknown command")

// Sensor is a simulated sensor and the bus it sits on. It keeps the
// power-on scratchpad until the first conversion.
type Sensor struct {
	mu          sync.Mutex
	temperature float32
	drift       float32
	rng         *rand.Rand
	scratchpad  [ds18b20.ScratchpadSize]byte
	corrupt     int
	absent      bool
	conversions int
}

// New creates a sensor that will convert to celsius
func New(celsius float32) *Sensor {
	return &Sensor{
		temperature: celsius,
		scratchpad:  ds18b20.PowerOnScratchpad,
		rng:         rand.New(rand.NewSource(1)),
	}
}

// SetTemperature sets the value captured by the next conversion
func (s *Sensor) SetTemperature(celsius float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temperature = celsius
}

// SetDrift makes each conversion move the temperature by a random step of
// at most step degrees
func (s *Sensor) SetDrift(step float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drift = step
}

// SetScratchpad overrides the raw bytes returned by the next reads
func (s *Sensor) SetScratchpad(data [ds18b20.ScratchpadSize]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scratchpad = data
}

// CorruptNext flips one bit in each of the next n scratchpad reads
func (s *Sensor) CorruptNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt = n
}

// Disconnect makes the bus report no presence pulse
func (s *Sensor) Disconnect(absent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.absent = absent
}

// Conversions returns the number of completed conversions
func (s *Sensor) Conversions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversions
}

func (s *Sensor) String() string {
	return "ds18b20sim"
}

// Tx implements onewire.Bus
func (s *Sensor) Tx(w, r []byte, power onewire.Pullup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.absent {
		return errors.New("ds18b20sim: no presence pulse")
	}

	switch {
	case bytes.Equal(w, []byte{ds18b20.CmdSkipROM, ds18b20.CmdConvertT}):
		if s.drift != 0 {
			s.temperature += (s.rng.Float32()*2 - 1) * s.drift
		}
		s.scratchpad = ds18b20.Encode(s.temperature)
		s.conversions++
		return nil

	case bytes.Equal(w, []byte{ds18b20.CmdSkipROM, ds18b20.CmdReadScratchpad}):
		n := copy(r, s.scratchpad[:])
		if s.corrupt > 0 && n > 0 {
			s.corrupt--
			r[s.rng.Intn(n)] ^= 1 << uint(s.rng.Intn(8))
		}
		return nil
	}

	return fmt.Errorf("%w: % X", ErrUnknownCommand, w)
}

// Search implements onewire.Bus. Enumeration is not supported.
func (s *Sensor) Search(alarmOnly bool) ([]onewire.Address, error) {
	return nil, errors.New("ds18b20sim: search not supported")
}

var _ onewire.Bus = (*Sensor)(nil)
