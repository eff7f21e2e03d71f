package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Lifecycle events synthesized locally by the manager. They never arrive over the wire.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
)

// Servers greet with a "connected" frame of their own. Inbound frames that
// reuse a lifecycle name are routed under this prefix instead, e.g.
// "server.connected", so lifecycle handlers fire once per open.
const serverEventPrefix = "server."

// EventServerConnected is the server's own greeting frame.
const EventServerConnected = serverEventPrefix + EventConnected

func isLifecycle(eventType string) bool {
	switch eventType {
	case EventConnected, EventDisconnected, EventError:
		return true
	}
	return false
}

// OutboundEnvelope is the wire shape of every command sent to the server.
type OutboundEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// InboundEnvelope is a parsed server frame.
type InboundEnvelope struct {
	Type    string
	Payload json.RawMessage
}

// ParseEnvelope decodes one inbound frame.
//
// "payload" is the canonical field. Older servers send the body under "data"
// or flatten it onto the envelope itself; both are mapped onto Payload here so
// handlers only ever see one shape.
func ParseEnvelope(raw []byte) (InboundEnvelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return InboundEnvelope{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	rawType, ok := fields["type"]
	if !ok {
		return InboundEnvelope{}, fmt.Errorf("%w: missing type", ErrParse)
	}
	var eventType string
	if err := json.Unmarshal(rawType, &eventType); err != nil {
		return InboundEnvelope{}, fmt.Errorf("%w: type is not a string", ErrParse)
	}
	if eventType == "" {
		return InboundEnvelope{}, fmt.Errorf("%w: empty type", ErrParse)
	}

	return InboundEnvelope{
		Type:    eventType,
		Payload: legacyPayload(raw, fields),
	}, nil
}

func legacyPayload(raw []byte, fields map[string]json.RawMessage) json.RawMessage {
	if payload, ok := fields["payload"]; ok {
		return payload
	}
	if data, ok := fields["data"]; ok {
		return data
	}
	return json.RawMessage(raw)
}

// Decode unmarshals a handler payload into T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, errors.New("realtime: empty payload")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("realtime: decode payload: %w", err)
	}
	return v, nil
}
