// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// encodeMessage encodes [msgType, fields] with deterministic key order
func encodeMessage(msgType uint8, fields map[int]interface{}) ([]byte, error) {
	var msg interface{}
	if len(fields) == 0 {
		msg = []interface{}{uint64(msgType), nil}
	} else {
		msg = []interface{}{uint64(msgType), fields}
	}
	return encMode.Marshal(msg)
}

// ParseMessage parses a [msgType, fields] CBOR body. Fields is nil for
// empty messages.
func ParseMessage(data []byte) (msgType uint8, fields map[int]interface{}, err error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty CBOR payload")
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if len(msg) != 2 {
		return 0, nil, fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}

	v, ok := msg[0].(uint64)
	if !ok {
		return 0, nil, fmt.Errorf("expected uint for message type, got %T", msg[0])
	}
	if v > 255 {
		return 0, nil, fmt.Errorf("message type out of range: %d", v)
	}
	msgType = uint8(v)

	if msg[1] == nil {
		return msgType, nil, nil
	}
	m, ok := msg[1].(map[interface{}]interface{})
	if !ok {
		return 0, nil, fmt.Errorf("expected map or nil for payload, got %T", msg[1])
	}

	fields = make(map[int]interface{}, len(m))
	for key, val := range m {
		switch k := key.(type) {
		case uint64:
			fields[int(k)] = val
		case int64:
			fields[int(k)] = val
		default:
			return 0, nil, fmt.Errorf("expected integer map key, got %T", key)
		}
	}
	return msgType, fields, nil
}

// GetMapUint extracts a uint64 by key
func GetMapUint(m map[int]interface{}, key int) (uint64, bool) {
	switch v := m[key].(type) {
	case uint64:
		return v, true
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	}
	return 0, false
}

// GetMapFloat extracts a float64 by key. Integers are converted.
func GetMapFloat(m map[int]interface{}, key int) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// GetMapBool extracts a bool by key
func GetMapBool(m map[int]interface{}, key int) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

// GetMapString extracts a string by key
func GetMapString(m map[int]interface{}, key int) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}
