// Package wire defines the message vocabulary spoken on the two sockets this
// service sits between: the LED hardware controller on one side and the
// dashboard UI on the other. Every frame is a JSON envelope of the form
// {"type": "...", "data": {...}}. The command and event names, payload
// shapes and mode strings are shared with the hardware controller and must
// not drift from it.
package wire

import (
	"encoding/json"
	"fmt"
)

// Mode is the coarse state of the LED installation. Exactly one mode is
// active at any time.
type Mode string

const (
	ModeInteractive   Mode = "interactive"
	ModeVisualization Mode = "visualization"
	ModeOff           Mode = "off"
)

// Valid reports whether m is one of the three wire modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeInteractive, ModeVisualization, ModeOff:
		return true
	}
	return false
}

// Message types sent to the hardware controller.
const (
	TypeSetMode              = "set_mode"
	TypeUpdateInteractive    = "update_interactive"
	TypeClearAll             = "clear_all"
	TypeSetBrightness        = "set_brightness"
	TypeVisualizationControl = "visualization_control"
)

// Message types received from the hardware controller.
const (
	TypeLEDStatus           = "led_status"
	TypeVisualizationStatus = "visualization_status"
)

// Message types on the dashboard socket.
const (
	TypeStateUpdate = "state_update"
	TypeLEDCommand  = "led_command"
	TypeError       = "error"
)

// Envelope is the outer frame for every message on either socket.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope wraps data in an envelope of the given type. A nil data yields
// an envelope without a data field (clear_all is the one command that uses
// this).
func NewEnvelope(msgType string, data any) (Envelope, error) {
	env := Envelope{Type: msgType}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	env.Data = raw
	return env, nil
}

// Decode unmarshals the envelope payload into the given value.
func (e Envelope) Decode(into any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s message has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, into); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return nil
}
