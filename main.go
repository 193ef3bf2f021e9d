// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Quadtherm - DS18B20 temperature node
//
// Samples a 1-Wire temperature sensor, shows the readings locally and serves
// them as JSON records to TCP clients once the wireless link is up.

package main

import (
	"os"

	"github.com/Thermoquad/quadtherm/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
