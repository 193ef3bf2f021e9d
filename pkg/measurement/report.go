// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package measurement

import (
	"encoding/json"
	"fmt"
)

// Report is the record served to network clients:
//
//	{"temperature":21.5}
//	{"temperature":null}
type Report struct {
	Temperature Measurement `json:"temperature"`
}

const reportPrefix = `{"temperature":`

// AppendReport appends the encoded record for m to dst
func AppendReport(dst []byte, m Measurement) []byte {
	dst = append(dst, reportPrefix...)
	dst = m.AppendJSON(dst)
	return append(dst, '}')
}

// ParseReport decodes a record received from a responder
func ParseReport(data []byte) (Report, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Report{}, fmt.Errorf("invalid report: %w", err)
	}
	raw, ok := fields["temperature"]
	if !ok {
		return Report{}, fmt.Errorf("invalid report: missing temperature field")
	}

	var rep Report
	if err := rep.Temperature.UnmarshalJSON(raw); err != nil {
		return Report{}, fmt.Errorf("invalid report: %w", err)
	}
	return rep, nil
}
