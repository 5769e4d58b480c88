// Package notify publishes repeater activity to MQTT and to the tripwire
// webhook.
package notify

import (
	"encoding/json"
	"time"

	"github.com/sweeney/repeater/internal/repeater"
)

// Event kinds.
const (
	EventTransmission = "TRANSMISSION"
	EventStartup      = "STARTUP"
	EventShutdown     = "SHUTDOWN"
	EventOffline      = "OFFLINE"
)

// Publisher publishes events to a broker.
type Publisher interface {
	// Publish sends a transmission event. Errors are reported, never fatal.
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether a broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Event is a completed re-transmission.
type Event struct {
	Timestamp time.Time
	Mode      string
	Received  time.Time
	Start     time.Time
	End       time.Time
}

// FromTransmission converts a control loop event.
func FromTransmission(ev repeater.TransmissionEvent) Event {
	return Event{
		Timestamp: ev.End,
		Mode:      ev.Mode.String(),
		Received:  ev.Received,
		Start:     ev.Start,
		End:       ev.End,
	}
}

// SystemEvent is a lifecycle event.
type SystemEvent struct {
	Timestamp time.Time
	Event     string // STARTUP, SHUTDOWN, OFFLINE
	Reason    string // shutdown only
	Mode      string
	Retained  bool
}

// Payload is the JSON body for a transmission event, on MQTT and the
// webhook alike.
type Payload struct {
	Repeater RepeaterPayload `json:"repeater"`
}

// RepeaterPayload contains the transmission details.
type RepeaterPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Mode       string `json:"mode"`
	Received   string `json:"received"`
	RecordedMs int64  `json:"recorded_ms"`
	PlayedMs   int64  `json:"played_ms"`
}

// FormatPayload creates the JSON payload for a transmission event.
func FormatPayload(e Event) ([]byte, error) {
	return json.Marshal(Payload{
		Repeater: RepeaterPayload{
			Timestamp:  e.Timestamp.UTC().Format(time.RFC3339),
			Event:      EventTransmission,
			Mode:       e.Mode,
			Received:   e.Received.UTC().Format(time.RFC3339),
			RecordedMs: e.Start.Sub(e.Received).Milliseconds(),
			PlayedMs:   e.End.Sub(e.Start).Milliseconds(),
		},
	})
}

// SystemPayload is the JSON body for a system event.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(e SystemEvent) ([]byte, error) {
	inner := SystemPayloadInner{Event: e.Event, Reason: e.Reason, Mode: e.Mode}
	if !e.Timestamp.IsZero() {
		inner.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}
