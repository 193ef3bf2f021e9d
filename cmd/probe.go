// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/quadtherm/pkg/ds18b20"
)

var (
	probeBus    string
	probePort   string
	probeSettle time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run one conversion and dump the scratchpad",
	Long: `Trigger one temperature conversion, read the sensor scratchpad and print
the raw bytes, the integrity check verdict and the decoded temperature.

A reading of 85.0 right after power-up is the sensor's reset value and means
no conversion has completed yet.

Exit codes:
  0 - Scratchpad read and CRC valid
  1 - Scratchpad read but CRC invalid
  2 - Bus error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVar(&probeBus, "bus", "", "Sensor bus (uart, sim)")
	probeCmd.Flags().StringVarP(&probePort, "port", "p", "", "Serial port for the uart bus")
	probeCmd.Flags().DurationVar(&probeSettle, "settle", ds18b20.ConversionTime, "Wait between conversion and read")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if probeBus != "" {
		cfg.Sensor.Bus = probeBus
	}
	if probePort != "" {
		cfg.Sensor.Port = probePort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	bus, closer, err := OpenBus(cfg.Sensor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer closer.Close()

	dev := ds18b20.New(bus)
	fmt.Printf("Quadtherm - Probe\n")
	fmt.Printf("Device: %s\n\n", dev)

	if err := dev.StartConversion(); err != nil {
		fmt.Fprintf(os.Stderr, "Convert T failed: %v\n", err)
		os.Exit(2)
	}
	time.Sleep(probeSettle)

	data, err := dev.ReadScratchpad()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read scratchpad failed: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Scratchpad: % X\n", data[:])
	fmt.Printf("CRC:        0x%02X (computed 0x%02X)\n",
		data[ds18b20.ScratchpadSize-1], ds18b20.CalculateCRC(data[:ds18b20.ScratchpadSize-1]))

	celsius, err := ds18b20.Decode(data)
	var crcErr *ds18b20.CRCError
	if errors.As(err, &crcErr) {
		fmt.Printf("Result:     INVALID (%v)\n", err)
		closer.Close()
		os.Exit(1)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Result:     %.4f °C\n", celsius)
	return nil
}
