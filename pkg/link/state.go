// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link brings the wireless link up and hands the outcome to the
// responder and the configuration screen.
package link

import (
	"fmt"
	"net"
	"net/netip"
)

// State is the terminal outcome of a bring-up: Up with the assigned
// identity, or Down
type State struct {
	up   bool
	addr netip.Prefix
	hw   net.HardwareAddr
}

// Up returns the connected state
func Up(addr netip.Prefix, hw net.HardwareAddr) State {
	return State{up: true, addr: addr, hw: hw}
}

// Down returns the disconnected state
func Down() State {
	return State{}
}

// IsUp reports whether the link came up
func (s State) IsUp() bool {
	return s.up
}

// Address returns the assigned address and prefix length
func (s State) Address() netip.Prefix {
	return s.addr
}

// HardwareAddr returns the link-layer identity
func (s State) HardwareAddr() net.HardwareAddr {
	return s.hw
}

func (s State) String() string {
	if !s.up {
		return "down"
	}
	return fmt.Sprintf("up %s hw %s", s.addr, s.hw)
}
