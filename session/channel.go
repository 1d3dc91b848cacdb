package session

import (
	"context"
	"encoding/json"
)

// Inbound event names republished verbatim to subscribers.
const (
	EventUnitLocationUpdate = "unit_location_update"
	EventUnitLocations      = "unit_locations_response"
	EventUnitStatusUpdate   = "unit_status_update"
	EventUnitHistory        = "unit_history_response"
	EventEmergencyCreated   = "emergency_created"
	EventEmergencyUpdated   = "emergency_updated"
	EventEmergencyUpdate    = "emergency_update"
	EventError              = "error"
)

// Outbound control and request event names.
const (
	EventJoinTrackingRoom   = "join_tracking_room"
	EventLeaveTrackingRoom  = "leave_tracking_room"
	EventGetUnitLocations   = "get_unit_locations"
	EventUpdateUnitLocation = "update_unit_location"
	EventGetUnitHistory     = "get_unit_history"
)

// TopicConnection carries ConnectionEvent payloads describing the session
// lifecycle (connected, reconnected, disconnected, reconnect_error,
// reconnect_failed).
const TopicConnection = "connection"

// ConnectionEvent is the payload published on TopicConnection.
type ConnectionEvent struct {
	Status   string `json:"status"`
	Attempts int    `json:"attempts,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Message is one framed event received from the push channel.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Channel is the transport the Manager drives. Implementations own framing;
// the Manager never looks inside it.
type Channel interface {
	Connect(ctx context.Context) error
	Close() error
	Send(event string, data any) error
	// Receive blocks for the next inbound message and returns an error on
	// transport-level drop.
	Receive() (Message, error)
}

// Dialer produces a fresh, unconnected Channel for a URL. The Manager
// re-dials on every (re)connect so implementations never need to support
// reuse after Close.
type Dialer func(url string) Channel
