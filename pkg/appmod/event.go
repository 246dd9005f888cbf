// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package appmod

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Event stream message types, device to host.
const (
	EventDetections uint8 = 0x01
)

// Configuration message types, host to device.
const (
	MsgSetThreshold uint8 = 0x10
)

// Integer payload map keys. CBOR integer keys keep the events small enough
// for the host's bounded app buffer.
const (
	KeyFrame     = 1
	KeyNetwork   = 2
	KeyCount     = 3
	KeyBoxes     = 4
	KeyThreshold = 5
)

// EncodeEvent encodes a message as a CBOR array: [msg_type, payload_map].
// Empty payloads encode as nil.
func EncodeEvent(msgType uint8, payload map[int]interface{}) []byte {
	var msg interface{}
	if len(payload) == 0 {
		msg = []interface{}{uint64(msgType), nil}
	} else {
		msg = []interface{}{uint64(msgType), payload}
	}
	data, err := cbor.Marshal(msg)
	if err != nil {
		// Payload maps are built in this package from fixed types.
		panic(fmt.Sprintf("appmod: event encode: %v", err))
	}
	return data
}

// ParseEvent parses a CBOR message: [msg_type, payload_map]
// Returns the message type and decoded payload map (nil for empty payloads)
func ParseEvent(data []byte) (msgType uint8, payload map[int]interface{}, err error) {
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

	switch v := msg[0].(type) {
	case uint64:
		if v > 255 {
			return 0, nil, fmt.Errorf("message type out of range: %d", v)
		}
		msgType = uint8(v)
	default:
		return 0, nil, fmt.Errorf("expected uint for message type, got %T", msg[0])
	}

	if msg[1] == nil {
		return msgType, nil, nil
	}

	switch v := msg[1].(type) {
	case map[interface{}]interface{}:
		payload = make(map[int]interface{})
		for key, val := range v {
			switch k := key.(type) {
			case uint64:
				payload[int(k)] = val
			case int64:
				payload[int(k)] = val
			default:
				return 0, nil, fmt.Errorf("expected integer map key, got %T", key)
			}
		}
	default:
		return 0, nil, fmt.Errorf("expected map or nil for payload, got %T", msg[1])
	}

	return msgType, payload, nil
}

// detectionsPayload builds the per-frame event payload. Boxes travel as one
// packed byte string rather than nested CBOR structures.
func detectionsPayload(frame uint64, networkID uint32, dets []Detection) map[int]interface{} {
	packed := make([]byte, 4+len(dets)*detRecordSize)
	WriteResults(packed, dets)
	return map[int]interface{}{
		KeyFrame:   frame,
		KeyNetwork: uint64(networkID),
		KeyCount:   uint64(len(dets)),
		KeyBoxes:   packed,
	}
}

// ThresholdMessage builds the host-side threshold-set blob.
func ThresholdMessage(threshold uint16) []byte {
	return EncodeEvent(MsgSetThreshold, map[int]interface{}{
		KeyThreshold: uint64(threshold),
	})
}

// GetMapUint extracts a uint64 from a CBOR map by key
func GetMapUint(m map[int]interface{}, key int) (uint64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case uint64:
		return val, true
	case int64:
		if val >= 0 {
			return uint64(val), true
		}
		return 0, false
	}
	return 0, false
}

// GetMapBytes extracts a []byte from a CBOR map by key
func GetMapBytes(m map[int]interface{}, key int) ([]byte, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	if val, ok := v.([]byte); ok {
		return val, true
	}
	return nil, false
}
