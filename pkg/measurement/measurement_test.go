// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package measurement

import (
	"encoding/json"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		m    Measurement
		want string
	}{
		{Of(85), "85.0"},
		{Of(21.5625), "21.6"},
		{Of(-10.125), "-10.1"},
		{Absent(), "--"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestAppendReport(t *testing.T) {
	tests := []struct {
		name string
		m    Measurement
		want string
	}{
		{"power-on default", Of(85), `{"temperature":85.0}`},
		{"fraction", Of(21.5625), `{"temperature":21.5625}`},
		{"negative", Of(-10.125), `{"temperature":-10.125}`},
		{"zero", Of(0), `{"temperature":0.0}`},
		{"absent", Absent(), `{"temperature":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(AppendReport(nil, tt.m)); got != tt.want {
				t.Errorf("AppendReport = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAppendReport_ReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 64)
	buf = AppendReport(buf[:0], Of(85))
	buf = AppendReport(buf[:0], Absent())
	if string(buf) != `{"temperature":null}` {
		t.Errorf("got %s", buf)
	}
}

func TestReport_MatchesEncodingJSON(t *testing.T) {
	for _, m := range []Measurement{Of(85), Of(-0.5), Absent()} {
		std, err := json.Marshal(Report{Temperature: m})
		if err != nil {
			t.Fatalf("json.Marshal error: %v", err)
		}
		if got := string(AppendReport(nil, m)); got != string(std) {
			t.Errorf("AppendReport = %s, json.Marshal = %s", got, std)
		}
	}
}

func TestParseReport(t *testing.T) {
	r, err := ParseReport([]byte(`{"temperature":85.0}`))
	if err != nil {
		t.Fatalf("ParseReport error: %v", err)
	}
	if c, ok := r.Temperature.Celsius(); !ok || c != 85 {
		t.Errorf("Celsius() = %v, %v; want 85, true", c, ok)
	}

	r, err = ParseReport([]byte(`{"temperature":null}`))
	if err != nil {
		t.Fatalf("ParseReport error: %v", err)
	}
	if r.Temperature.Present() {
		t.Error("null temperature should be absent")
	}
}

func TestParseReport_Invalid(t *testing.T) {
	for _, in := range []string{``, `{}`, `{"temperature":"hot"}`, `[1]`} {
		if _, err := ParseReport([]byte(in)); err == nil {
			t.Errorf("ParseReport(%q) should fail", in)
		}
	}
}
