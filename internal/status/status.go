// Package status provides a thread-safe status tracker for the repeater.
// It is written by the control loop hooks and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/repeater/internal/repeater"
)

// Config contains repeater configuration for display.
type Config struct {
	Mode              string
	Enabled           bool
	TimeoutSeconds    int64
	DebounceMs        int64
	PollMs            int64
	CourtesyTone      string
	StoreRecordings   bool
	Broker            string
	HTTPAddr          string
	GPIOBackend       string
	TripwireEnabled   bool
	ArchiveConfigured bool
}

// Counts are running totals since startup.
type Counts struct {
	Recordings    int
	Transmissions int
	Timeouts      int
	AudioFailures int
}

// Snapshot is a point-in-time view of repeater state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State            repeater.State
	StateSince       time.Time
	Counts           Counts
	LastTransmission time.Time
	StartTime        time.Time
	Now              time.Time
	MQTTConnected    bool
	Config           Config
}

// Uptime returns the duration since the repeater started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable repeater state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:      repeater.StateIdle,
			StateSince: startTime,
			StartTime:  startTime,
			Config:     cfg,
		},
		now: time.Now,
	}
}

// StateChange records a transition. A Recording to AwaitingKeyRelease
// transition counts as a timeout.
func (t *Tracker) StateChange(from, to repeater.State, at time.Time) {
	t.mu.Lock()
	t.snap.State = to
	t.snap.StateSince = at
	if from == repeater.StateRecording && to == repeater.StateAwaitingKeyRelease {
		t.snap.Counts.Timeouts++
	}
	t.mu.Unlock()
}

// RecordingComplete counts a finished recording.
func (t *Tracker) RecordingComplete(repeater.RecordingEvent) {
	t.mu.Lock()
	t.snap.Counts.Recordings++
	t.mu.Unlock()
}

// TransmissionComplete counts a re-transmission.
func (t *Tracker) TransmissionComplete(ev repeater.TransmissionEvent) {
	t.mu.Lock()
	t.snap.Counts.Transmissions++
	t.snap.LastTransmission = ev.End
	t.mu.Unlock()
}

// AudioFailure counts a recorder or player failure.
func (t *Tracker) AudioFailure(error) {
	t.mu.Lock()
	t.snap.Counts.AudioFailures++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the repeater state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
