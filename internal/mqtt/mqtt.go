// Package mqtt bridges the control core to an MQTT broker: inbound
// sensor and zone temperature feeds, outbound event publishing, with a
// client abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Client is the broker connection used by the Bridge.
type Client interface {
	// Publish sends a payload. Returns an error if the broker rejects
	// or times out; callers must treat failures as non-fatal.
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// Subscribe registers a handler for a topic filter.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected reports whether the broker connection is active.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// SensorPayload is the inbound JSON body for sensor and zone
// temperature messages. Timestamp is optional RFC3339; absent means
// "now".
type SensorPayload struct {
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// EventPayload is the outbound JSON body for control-core events.
type EventPayload struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	SystemID  string         `json:"system_id"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func formatEvent(event, systemID string, at time.Time, fields map[string]any) ([]byte, error) {
	return json.Marshal(EventPayload{
		Timestamp: at.UTC().Format(time.RFC3339),
		Event:     event,
		SystemID:  systemID,
		Fields:    fields,
	})
}
