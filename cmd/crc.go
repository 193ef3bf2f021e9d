// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/quadtherm/pkg/ds18b20"
)

var crcCmd = &cobra.Command{
	Use:   "crc <hex bytes>...",
	Short: "Compute or verify a 1-Wire CRC-8",
	Long: `Compute the Dallas/Maxim CRC-8 of the given bytes.

Bytes may be given as one hex string or as separate arguments:
  quadtherm crc 50 05 4B 46 7F FF 0C 10
  quadtherm crc 50054B467FFF0C101C

Nine bytes are treated as a scratchpad: the remainder over all nine must be
zero and the temperature register is decoded.

Exit codes:
  0 - CRC computed, or scratchpad valid
  1 - Scratchpad invalid`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCRC,
}

func init() {
	rootCmd.AddCommand(crcCmd)
}

func runCRC(cmd *cobra.Command, args []string) error {
	data, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}

	fmt.Printf("Bytes: % X\n", data)
	fmt.Printf("CRC-8: 0x%02X\n", ds18b20.CalculateCRC(data))

	if len(data) != ds18b20.ScratchpadSize {
		return nil
	}

	var scratchpad [ds18b20.ScratchpadSize]byte
	copy(scratchpad[:], data)
	celsius, err := ds18b20.Decode(scratchpad)
	if err != nil {
		fmt.Printf("Scratchpad: INVALID\n")
		os.Exit(1)
	}
	fmt.Printf("Scratchpad: valid, %.4f °C\n", celsius)
	return nil
}
