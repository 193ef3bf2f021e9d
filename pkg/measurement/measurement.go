// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package measurement defines the optional temperature reading shared by the
// acquisition loop and its consumers, and its wire record.
package measurement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Placeholder is shown in place of an absent reading
const Placeholder = "--"

// Measurement is a temperature in degrees Celsius, or no value when the
// conversion or read failed
type Measurement struct {
	celsius float32
	valid   bool
}

// Of returns a present reading
func Of(celsius float32) Measurement {
	return Measurement{celsius: celsius, valid: true}
}

// Absent returns a missing reading
func Absent() Measurement {
	return Measurement{}
}

// Celsius returns the value and whether it is present
func (m Measurement) Celsius() (float32, bool) {
	return m.celsius, m.valid
}

// Present reports whether the reading holds a value
func (m Measurement) Present() bool {
	return m.valid
}

// String formats the reading with one decimal, or the placeholder
func (m Measurement) String() string {
	if !m.valid {
		return Placeholder
	}
	return fmt.Sprintf("%.1f", m.celsius)
}

// AppendJSON appends the reading as a JSON number or null.
// Numbers use the shortest float32 form and always carry a decimal point.
func (m Measurement) AppendJSON(dst []byte) []byte {
	if !m.valid {
		return append(dst, "null"...)
	}
	start := len(dst)
	dst = strconv.AppendFloat(dst, float64(m.celsius), 'f', -1, 32)
	if bytes.IndexByte(dst[start:], '.') < 0 {
		dst = append(dst, ".0"...)
	}
	return dst
}

// MarshalJSON implements json.Marshaler
func (m Measurement) MarshalJSON() ([]byte, error) {
	return m.AppendJSON(nil), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Measurement) UnmarshalJSON(data []byte) error {
	var v *float32
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("temperature: %w", err)
	}
	if v == nil {
		*m = Absent()
	} else {
		*m = Of(*v)
	}
	return nil
}
