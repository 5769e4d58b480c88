// Package audio drives the external recorder and player used by the repeater.
package audio

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the recorder or player could not be
// started, stopped or run to completion. The controller treats it as
// recoverable.
var ErrUnavailable = errors.New("audio: engine unavailable")

// Recording is a running background recording. It must be stopped before the
// file at Path is considered complete.
type Recording interface {
	// PID returns the recorder's process id, or 0 if there is none.
	PID() int

	// Path returns the file being written.
	Path() string

	// Stop interrupts the recorder and waits for it to finalize the file.
	// It escalates to a kill after a grace period and then returns an
	// error wrapping ErrUnavailable. Stop is safe to call more than once.
	Stop() error
}

// Engine records and plays audio.
type Engine interface {
	// StartRecording begins recording from device into path in the background.
	StartRecording(device, path string) (Recording, error)

	// RecordVOX blocks until the recorder's own voice detection has captured
	// one transmission into path. Cancelling ctx interrupts the recorder and
	// returns ctx.Err(); whatever was captured must not be replayed.
	RecordVOX(ctx context.Context, device, path, tuning string) error

	// Play blocks until path has been played.
	Play(path string) error

	// PlayTone blocks until the named tone has been played.
	PlayTone(name string) error
}
