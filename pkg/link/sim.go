// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
)

// Sim is an in-memory radio and stack
type Sim struct {
	mu sync.Mutex

	InitErr error
	// JoinFailures is the number of joins rejected before one succeeds.
	// Negative rejects every join.
	JoinFailures int
	// JoinStatus is reported by rejected joins
	JoinStatus int
	// ConfigAfter is the number of status polls before an address appears.
	// Negative never configures an address.
	ConfigAfter int
	// NoCarrier keeps the link layer down after configuration
	NoCarrier bool

	Address      netip.Prefix
	HardwareAddr net.HardwareAddr

	joins  int
	polls  int
	policy PowerPolicy
}

// NewSim returns a simulated radio that joins on the first attempt
func NewSim() *Sim {
	return &Sim{
		Address:      netip.MustParsePrefix("192.168.4.2/24"),
		HardwareAddr: net.HardwareAddr{0x28, 0xcd, 0xc1, 0x00, 0x00, 0x01},
	}
}

// Init implements Radio
func (s *Sim) Init(ctx context.Context, policy PowerPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = policy
	return s.InitErr
}

// Join implements Radio
func (s *Sim) Join(ctx context.Context, network Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.joins++
	if s.JoinFailures < 0 || s.joins <= s.JoinFailures {
		return &JoinError{SSID: network.SSID, Status: s.JoinStatus}
	}
	return nil
}

// Status implements Stack
func (s *Sim) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.joins == 0 {
		return Status{}, errors.New("sim: not joined")
	}
	s.polls++
	if s.ConfigAfter < 0 || s.polls <= s.ConfigAfter {
		return Status{HardwareAddr: s.HardwareAddr}, nil
	}
	return Status{
		ConfigUp:     true,
		LinkUp:       !s.NoCarrier,
		Address:      s.Address,
		HardwareAddr: s.HardwareAddr,
	}, nil
}

// Joins returns the number of join attempts
func (s *Sim) Joins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joins
}

// Polls returns the number of status polls since joining
func (s *Sim) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Policy returns the power policy passed to Init
func (s *Sim) Policy() PowerPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

var (
	_ Radio = (*Sim)(nil)
	_ Stack = (*Sim)(nil)
)
