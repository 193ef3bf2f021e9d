// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os/exec"
	"slices"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// CommandRunner runs an external command with stdin fed from input and
// returns its combined output
type CommandRunner func(ctx context.Context, input string, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, input string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	return cmd.CombinedOutput()
}

// hasCarrier reports whether the kernel sees a lower layer carrier
func hasCarrier(name string) bool {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return false
	}
	return iface.Flags&net.FlagRunning != 0
}

// Host drives a wireless interface on a Linux host through NetworkManager
// and reads its status from the kernel interface table
type Host struct {
	Interface string

	run        CommandRunner
	interfaces func(ctx context.Context) (psnet.InterfaceStatList, error)
	carrier    func(name string) bool
}

// NewHost creates a radio and stack for the named interface
func NewHost(iface string) *Host {
	return &Host{
		Interface:  iface,
		run:        execRunner,
		interfaces: psnet.InterfacesWithContext,
		carrier:    hasCarrier,
	}
}

// Init checks the interface exists and applies the power policy
func (h *Host) Init(ctx context.Context, policy PowerPolicy) error {
	if _, err := h.lookup(ctx); err != nil {
		return err
	}

	mode := "off"
	if policy == PowerSave {
		mode = "on"
	}
	if out, err := h.run(ctx, "", "iw", "dev", h.Interface, "set", "power_save", mode); err != nil {
		return fmt.Errorf("set power_save %s: %w: %s", mode, err, out)
	}
	return nil
}

// Join connects the interface to the network. An empty SSID keeps the
// current association. The passphrase is answered on stdin so it never
// appears in the process table.
func (h *Host) Join(ctx context.Context, network Network) error {
	if network.SSID == "" {
		return nil
	}

	args := []string{"device", "wifi", "connect", network.SSID, "ifname", h.Interface}
	var input string
	if network.Passphrase != "" {
		args = append([]string{"--ask"}, args...)
		input = network.Passphrase + "\n"
	}

	_, err := h.run(ctx, input, "nmcli", args...)
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &JoinError{SSID: network.SSID, Status: exitErr.ExitCode()}
	}
	return err
}

// Status implements Stack
func (h *Host) Status(ctx context.Context) (Status, error) {
	iface, err := h.lookup(ctx)
	if err != nil {
		return Status{}, err
	}

	var st Status
	st.LinkUp = slices.Contains(iface.Flags, "up") && h.running(iface)
	if hw, err := net.ParseMAC(iface.HardwareAddr); err == nil {
		st.HardwareAddr = hw
	}
	for _, a := range iface.Addrs {
		prefix, err := netip.ParsePrefix(a.Addr)
		if err != nil || !prefix.Addr().Is4() {
			continue
		}
		st.Address = prefix
		st.ConfigUp = true
		break
	}
	return st, nil
}

// running checks carrier. gopsutil only reports administrative flags, so
// the kernel is asked directly unless a running flag is already present.
func (h *Host) running(iface psnet.InterfaceStat) bool {
	if slices.Contains(iface.Flags, "running") {
		return true
	}
	return h.carrier != nil && h.carrier(iface.Name)
}

func (h *Host) lookup(ctx context.Context) (psnet.InterfaceStat, error) {
	list, err := h.interfaces(ctx)
	if err != nil {
		return psnet.InterfaceStat{}, fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range list {
		if iface.Name == h.Interface {
			return iface, nil
		}
	}
	return psnet.InterfaceStat{}, fmt.Errorf("interface %q not found", h.Interface)
}

var (
	_ Radio = (*Host)(nil)
	_ Stack = (*Host)(nil)
)
