package repeater

import (
	"context"
	"time"

	"github.com/sweeney/repeater/internal/audio"
	"github.com/sweeney/repeater/internal/gpio"
)

// Controller is the COR state machine used by the simplex-cor and duplex-cor
// strategies. It is driven by a fixed-rate poll of the carrier-detect input.
//
// Idle -> Recording on carrier. Recording ends on debounce release (normal
// cycle, back to Idle) or on the hard transmit timeout (AwaitingKeyRelease,
// which needs one observation of no carrier before Idle). When both happen
// on the same tick the timeout wins.
type Controller struct {
	station

	state        State
	debounce     Debounce
	hardDeadline time.Time
	received     time.Time
	rec          audio.Recording
	keyed        bool // duplex: PTT raised at key-on
}

// NewController creates a Controller. opts.Mode selects simplex or duplex
// behaviour; ModeSimplexVOX is not handled here.
func NewController(d Deps, opts Options) *Controller {
	return &Controller{
		station:  station{Deps: d, opts: opts},
		state:    StateIdle,
		debounce: NewDebounce(opts.Debounce),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) duplex() bool {
	return c.opts.Mode == ModeDuplexCOR
}

// Run resets the radio outputs and polls until ctx is cancelled. Cancellation
// is only observed between transmissions, never while Recording. Run returns
// nil on cancellation and a gpio error if the radio fails; an active
// recording is always stopped before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	defer c.stopRecording()

	if err := c.Radio.Reset(); err != nil {
		return err
	}
	c.Log.Info().Str("mode", c.opts.Mode.String()).Dur("timeout", c.opts.Timeout).
		Dur("debounce", c.opts.Debounce).Dur("poll", c.opts.PollInterval).Msg("control loop started")

	for {
		if c.state != StateRecording {
			select {
			case <-ctx.Done():
				c.Log.Info().Msg("control loop stopped")
				return nil
			default:
			}
		}
		if err := c.Step(); err != nil {
			return err
		}
		c.Clock.Sleep(c.opts.PollInterval)
	}
}

// Step runs one tick of the state machine.
func (c *Controller) Step() error {
	now := c.Clock.Now()
	carrier, err := c.Radio.Carrier()
	if err != nil {
		return err
	}

	switch c.state {
	case StateAwaitingKeyRelease:
		// A new recording may start on the next tick at the earliest.
		if !carrier {
			c.Log.Info().Msg("carrier released after timeout")
			c.setState(StateIdle, now)
		}
		return nil

	case StateIdle:
		if carrier {
			return c.beginRecording(now)
		}
		return nil

	case StateRecording:
		return c.processRecording(now, carrier)
	}
	return nil
}

func (c *Controller) beginRecording(now time.Time) error {
	c.hardDeadline = now.Add(c.opts.Timeout)
	c.received = now

	if c.duplex() && c.opts.Enabled {
		if err := c.Radio.PTT.Write(gpio.High); err != nil {
			return err
		}
		c.keyed = true
		if err := c.Radio.LEDTx.Write(gpio.High); err != nil {
			return err
		}
	}
	if err := c.Radio.LEDRx.Write(gpio.High); err != nil {
		return err
	}

	c.clearBuffer()
	rec, err := c.Engine.StartRecording(c.opts.RecordDevice, c.opts.BufferPath)
	if err != nil {
		c.audioFailure("start recording", err)
	} else {
		c.rec = rec
		c.Log.Debug().Int("pid", rec.PID()).Str("path", rec.Path()).Msg("recording started")
	}

	c.debounce.Refresh(now)
	c.setState(StateRecording, now)
	return nil
}

func (c *Controller) processRecording(now time.Time, carrier bool) error {
	if carrier {
		c.debounce.Refresh(now)
	}
	timedOut := now.After(c.hardDeadline)
	released := c.debounce.Expired(now)
	if !timedOut && !released {
		return nil
	}

	if err := c.Radio.LEDRx.Write(gpio.Low); err != nil {
		return err
	}
	recorded := c.stopRecording()

	if timedOut {
		c.Log.Warn().Dur("timeout", c.opts.Timeout).Msg("transmit timeout reached, waiting for carrier release")
		if c.keyed {
			if err := c.unkey(); err != nil {
				return err
			}
		}
		c.setState(StateAwaitingKeyRelease, now)
		return nil
	}

	return c.completeCycle(now, recorded)
}

// completeCycle handles a clean end of transmission.
func (c *Controller) completeCycle(now time.Time, recorded bool) error {
	if recorded {
		c.recordingComplete(RecordingEvent{Path: c.opts.BufferPath, Start: c.received, End: now})
	}

	if !c.opts.Enabled {
		c.Log.Debug().Msg("listen-only, not transmitting")
		c.setState(StateIdle, now)
		return nil
	}

	if c.duplex() {
		c.courtesyTone()
		if err := c.unkey(); err != nil {
			return err
		}
	} else {
		if !recorded {
			c.Log.Warn().Msg("no recording available, skipping playback")
			c.setState(StateIdle, now)
			return nil
		}
		if err := c.retransmit(c.opts.BufferPath); err != nil {
			return err
		}
	}

	c.transmissionComplete(TransmissionEvent{
		Mode:     c.opts.Mode,
		Received: c.received,
		Start:    now,
		End:      c.Clock.Now(),
	})
	c.setState(StateIdle, c.Clock.Now())
	return nil
}

func (c *Controller) unkey() error {
	c.keyed = false
	if err := c.Radio.PTT.Write(gpio.Low); err != nil {
		return err
	}
	return c.Radio.LEDTx.Write(gpio.Low)
}

// stopRecording stops the active recording, if any, and reports whether a
// complete file was produced.
func (c *Controller) stopRecording() bool {
	if c.rec == nil {
		return false
	}
	rec := c.rec
	c.rec = nil
	if err := rec.Stop(); err != nil {
		c.audioFailure("stop recording", err)
		return false
	}
	return fileExists(rec.Path())
}

func (c *Controller) setState(to State, at time.Time) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.Log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("state change")
	if c.Hooks.StateChange != nil {
		c.Hooks.StateChange(from, to, at)
	}
}
