package protocol

import (
	"encoding/json"
	"fmt"
)

// Handshake is the identity payload the client writes as its first line
// after dialing, before any Event frame. The host uses it to present an
// accept/decline decision; it never answers with a typed reply.
type Handshake struct {
	DeviceType string `json:"deviceType"`
	DeviceName string `json:"deviceName"`
	DeviceID   string `json:"deviceID"`
	AppName    string `json:"appName"`
}

// EncodeHandshake serializes h as a single delimited frame.
func EncodeHandshake(h Handshake) ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode handshake: %w", err)
	}
	return append(data, Delimiter), nil
}

// DecodeHandshake parses a handshake frame. A handshake without a device ID
// is rejected; the remaining fields are advisory.
func DecodeHandshake(data []byte) (Handshake, error) {
	var h Handshake
	if err := json.Unmarshal(trimDelimiter(data), &h); err != nil {
		return Handshake{}, fmt.Errorf("protocol: decode handshake: %w", err)
	}
	if h.DeviceID == "" {
		return Handshake{}, fmt.Errorf("protocol: handshake missing deviceID")
	}
	return h, nil
}

func trimDelimiter(data []byte) []byte {
	if n := len(data); n > 0 && data[n-1] == Delimiter {
		return data[:n-1]
	}
	return data
}
