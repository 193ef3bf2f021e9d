// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// ErrRadioInit wraps radio initialization failures. They are fatal.
var ErrRadioInit = errors.New("link: radio initialization failed")

// PowerPolicy selects the radio power management mode
type PowerPolicy int

const (
	PowerSave PowerPolicy = iota
	Performance
)

func (p PowerPolicy) String() string {
	switch p {
	case PowerSave:
		return "powersave"
	case Performance:
		return "performance"
	default:
		return fmt.Sprintf("PowerPolicy(%d)", int(p))
	}
}

// ParsePowerPolicy parses the names returned by String
func ParsePowerPolicy(s string) (PowerPolicy, error) {
	switch s {
	case "", "powersave":
		return PowerSave, nil
	case "performance":
		return Performance, nil
	}
	return PowerSave, fmt.Errorf("unknown power policy %q", s)
}

// Network identifies the network to join
type Network struct {
	SSID       string
	Passphrase string
}

// JoinError is a rejected join with the radio's status code
type JoinError struct {
	SSID   string
	Status int
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join %q failed with status %d", e.SSID, e.Status)
}

// Radio is the low-level wireless driver
type Radio interface {
	// Init powers the radio up and applies the power policy
	Init(ctx context.Context, policy PowerPolicy) error
	// Join associates with the network. Failures should be *JoinError.
	Join(ctx context.Context, network Network) error
}

// Status is a snapshot of the network stack
type Status struct {
	// ConfigUp is true once an address has been configured
	ConfigUp bool
	// LinkUp is true while the link layer reports carrier
	LinkUp       bool
	Address      netip.Prefix
	HardwareAddr net.HardwareAddr
}

// Stack reports network stack status
type Stack interface {
	Status(ctx context.Context) (Status, error)
}
