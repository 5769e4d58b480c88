package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	State            string     `json:"state"`
	StateSince       string     `json:"state_since"`
	UptimeSeconds    int64      `json:"uptime_seconds"`
	StartTime        string     `json:"start_time"`
	Timestamp        string     `json:"timestamp"`
	LastTransmission string     `json:"last_transmission,omitempty"`
	MQTT             MQTTStatus `json:"mqtt"`
	Counts           CountsJSON `json:"counts"`
	Config           ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// CountsJSON is the JSON representation of the running totals.
type CountsJSON struct {
	Recordings    int `json:"recordings"`
	Transmissions int `json:"transmissions"`
	Timeouts      int `json:"timeouts"`
	AudioFailures int `json:"audio_failures"`
}

// ConfigJSON is the JSON representation of repeater config.
type ConfigJSON struct {
	Mode            string `json:"mode"`
	Enabled         bool   `json:"enabled"`
	TimeoutSeconds  int64  `json:"transmit_timeout"`
	DebounceMs      int64  `json:"debounce_ms"`
	PollMs          int64  `json:"poll_interval_ms"`
	CourtesyTone    string `json:"courtesy_tone"`
	StoreRecordings bool   `json:"store_recordings"`
	GPIOBackend     string `json:"gpio_backend"`
	HTTPAddr        string `json:"http_addr"`
	Tripwire        bool   `json:"tripwire"`
	Archive         bool   `json:"archive"`
}

// Build converts a snapshot into its JSON form.
func Build(snap Snapshot) StatusJSON {
	inner := StatusInner{
		State:         string(snap.State),
		StateSince:    snap.StateSince.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Recordings:    snap.Counts.Recordings,
			Transmissions: snap.Counts.Transmissions,
			Timeouts:      snap.Counts.Timeouts,
			AudioFailures: snap.Counts.AudioFailures,
		},
		Config: ConfigJSON{
			Mode:            snap.Config.Mode,
			Enabled:         snap.Config.Enabled,
			TimeoutSeconds:  snap.Config.TimeoutSeconds,
			DebounceMs:      snap.Config.DebounceMs,
			PollMs:          snap.Config.PollMs,
			CourtesyTone:    snap.Config.CourtesyTone,
			StoreRecordings: snap.Config.StoreRecordings,
			GPIOBackend:     snap.Config.GPIOBackend,
			HTTPAddr:        snap.Config.HTTPAddr,
			Tripwire:        snap.Config.TripwireEnabled,
			Archive:         snap.Config.ArchiveConfigured,
		},
	}
	if !snap.LastTransmission.IsZero() {
		inner.LastTransmission = snap.LastTransmission.UTC().Format(time.RFC3339)
	}
	return StatusJSON{Status: inner}
}

// FormatJSON returns the indented JSON status.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(Build(snap), "", "  ")
	return data
}
