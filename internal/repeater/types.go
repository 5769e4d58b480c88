// Package repeater contains the transmission control loop: the debounce and
// timeout state machine that turns carrier-detect transitions into
// recordings, re-transmissions and completion hooks.
//
// Time is injected through Clock so every timing rule can be tested
// without sleeping.
package repeater

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/repeater/internal/audio"
	"github.com/sweeney/repeater/internal/config"
	"github.com/sweeney/repeater/internal/gpio"
)

// State is the controller's transmission state.
type State string

const (
	StateIdle               State = "IDLE"
	StateRecording          State = "RECORDING"
	StateAwaitingKeyRelease State = "AWAITING_KEY_RELEASE"
)

// Mode is one of the three operating strategies.
type Mode int

const (
	ModeSimplexVOX Mode = iota + 1
	ModeSimplexCOR
	ModeDuplexCOR
)

func (m Mode) String() string {
	switch m {
	case ModeSimplexVOX:
		return config.ModeSimplexVOX
	case ModeSimplexCOR:
		return config.ModeSimplexCOR
	case ModeDuplexCOR:
		return config.ModeDuplexCOR
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Clock supplies time to the control loop.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Options are the timing and behaviour settings of a control loop.
type Options struct {
	Mode Mode

	// Enabled false means listen-only: record and archive, never transmit.
	Enabled bool

	Timeout       time.Duration
	Debounce      time.Duration
	PollInterval  time.Duration
	PlaybackDelay time.Duration

	// CourtesyTone is the tone name, or "" for none.
	CourtesyTone string

	RecordDevice string
	VOXTuning    string

	// BufferPath is where each incoming transmission is recorded.
	BufferPath string
}

// OptionsFromConfig builds Options from a validated configuration.
func OptionsFromConfig(c *config.Config, mode Mode) Options {
	return Options{
		Mode:          mode,
		Enabled:       c.Enabled,
		Timeout:       c.Timeout(),
		Debounce:      c.Debounce(),
		PollInterval:  c.PollInterval(),
		PlaybackDelay: c.PlaybackDelay(),
		CourtesyTone:  c.CourtesyToneName(),
		RecordDevice:  c.RecordDevice,
		VOXTuning:     c.VOXTuning,
		BufferPath:    c.Paths.Buffer,
	}
}

// RecordingEvent describes a finished recording.
type RecordingEvent struct {
	Path  string
	Start time.Time
	End   time.Time
}

// TransmissionEvent describes a completed re-transmission.
type TransmissionEvent struct {
	Mode     Mode
	Received time.Time // carrier first detected
	Start    time.Time // end of recording
	End      time.Time // PTT released
}

// Hooks are the side effects fired at state machine transitions. Any hook
// may be nil. Hooks run on the control loop and must not block on network
// I/O.
type Hooks struct {
	RecordingComplete    func(RecordingEvent)
	TransmissionComplete func(TransmissionEvent)
	StateChange          func(from, to State, at time.Time)
	AudioFailure         func(err error)
}

// Deps are the collaborators shared by every strategy.
type Deps struct {
	Radio  *gpio.Radio
	Engine audio.Engine
	Clock  Clock
	Hooks  Hooks
	Log    zerolog.Logger
}
