// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "fmt"

// FormatMessageType returns the name of a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgSample:
		return "SAMPLE"
	case MsgLinkState:
		return "LINK_STATE"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", msgType)
	}
}

// FormatFrame renders a frame on one line
func FormatFrame(f *Frame) string {
	prefix := fmt.Sprintf("[%s] %s addr=%016X", f.Received.Format("15:04:05.000"), FormatMessageType(f.Type), f.Address)

	switch f.Type {
	case MsgSample:
		s, err := f.Sample()
		if err != nil {
			return fmt.Sprintf("%s invalid: %v", prefix, err)
		}
		return fmt.Sprintf("%s seq=%d temperature=%s taken=%s", prefix, s.Sequence, s.Temperature,
			s.Time.Format("15:04:05.000"))

	case MsgLinkState:
		state, err := f.LinkState()
		if err != nil {
			return fmt.Sprintf("%s invalid: %v", prefix, err)
		}
		return fmt.Sprintf("%s %s", prefix, state)
	}

	return fmt.Sprintf("%s fields=%v", prefix, f.Fields)
}
