package repeater

import (
	"context"
	"time"
)

// voxRetryDelay is the pause after a failed VOX recording so a missing
// recorder does not spin the loop.
const voxRetryDelay = time.Second

// VOX is the simplex-vox strategy. The recorder's own voice detection
// decides when a transmission starts and ends, so there is no carrier
// polling, debounce or timeout state.
type VOX struct {
	station
}

// NewVOX creates a VOX loop.
func NewVOX(d Deps, opts Options) *VOX {
	opts.Mode = ModeSimplexVOX
	return &VOX{station: station{Deps: d, opts: opts}}
}

// Run resets the radio outputs and alternates record and playback until ctx
// is cancelled. Cancellation interrupts a recorder still waiting for voice;
// a playback already under way runs to completion.
func (v *VOX) Run(ctx context.Context) error {
	if err := v.Radio.Reset(); err != nil {
		return err
	}
	v.Log.Info().Str("mode", v.opts.Mode.String()).Msg("control loop started")

	for {
		select {
		case <-ctx.Done():
			v.Log.Info().Msg("control loop stopped")
			return nil
		default:
		}
		if err := v.Cycle(ctx); err != nil {
			return err
		}
	}
}

// Cycle records one voice-activated transmission and, unless listen-only,
// plays it back. A recording cut short by ctx is discarded.
func (v *VOX) Cycle(ctx context.Context) error {
	v.clearBuffer()
	start := v.Clock.Now()
	if err := v.Engine.RecordVOX(ctx, v.opts.RecordDevice, v.opts.BufferPath, v.opts.VOXTuning); err != nil {
		if ctx.Err() != nil {
			v.Log.Info().Msg("vox recording interrupted by shutdown")
			v.clearBuffer()
			return nil
		}
		v.audioFailure("vox record", err)
		v.Clock.Sleep(voxRetryDelay)
		return nil
	}
	end := v.Clock.Now()
	if !fileExists(v.opts.BufferPath) {
		v.Log.Warn().Str("path", v.opts.BufferPath).Msg("vox recorder produced no file")
		return nil
	}

	v.recordingComplete(RecordingEvent{Path: v.opts.BufferPath, Start: start, End: end})
	if !v.opts.Enabled {
		return nil
	}

	if err := v.retransmit(v.opts.BufferPath); err != nil {
		return err
	}
	v.transmissionComplete(TransmissionEvent{
		Mode:     ModeSimplexVOX,
		Received: start,
		Start:    end,
		End:      v.Clock.Now(),
	})
	return nil
}
