// Package events fans engine activity out to real-time transports.
//
// The engine's run hooks publish into a Broker; the broker delivers each
// event to every registered Subscriber (the WebSocket hub and the SSE
// broadcaster), so both transports see the same stream in the same order.
package events

import "time"

// EventType represents the type of engine event.
type EventType string

// Event types.
const (
	// Run events (from engine hooks).
	RunStarted   EventType = "run.started"
	RunPhase     EventType = "run.phase"
	RunCompleted EventType = "run.completed"

	// Review events (from override edits).
	OverrideSet     EventType = "override.set"
	OverrideDeleted EventType = "override.deleted"

	// Client events (from transport layers).
	ClientConnected EventType = "client.connected"
)

// Event is one engine event with a broker-assigned sequence number.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
