package repeater

import (
	"errors"
	"os"

	"github.com/sweeney/repeater/internal/gpio"
)

// station holds what the COR controller and the VOX loop share: the radio,
// the audio engine and the simplex re-transmission sequence.
type station struct {
	Deps
	opts Options
}

// retransmit runs the simplex sequence: TX-LED, playback delay, PTT, the
// recording, the courtesy tone, then PTT and TX-LED down. Audio failures are
// logged; GPIO failures abort the sequence.
func (s *station) retransmit(path string) error {
	if err := s.Radio.LEDTx.Write(gpio.High); err != nil {
		return err
	}
	if s.opts.PlaybackDelay > 0 {
		s.Clock.Sleep(s.opts.PlaybackDelay)
	}
	if err := s.Radio.PTT.Write(gpio.High); err != nil {
		return err
	}
	if err := s.Engine.Play(path); err != nil {
		s.audioFailure("play recording", err)
	}
	s.courtesyTone()
	if err := s.Radio.PTT.Write(gpio.Low); err != nil {
		return err
	}
	return s.Radio.LEDTx.Write(gpio.Low)
}

func (s *station) courtesyTone() {
	if s.opts.CourtesyTone == "" {
		return
	}
	if err := s.Engine.PlayTone(s.opts.CourtesyTone); err != nil {
		s.audioFailure("play courtesy tone", err)
	}
}

func (s *station) audioFailure(op string, err error) {
	s.Log.Warn().Err(err).Str("op", op).Msg("audio engine failure, continuing")
	if s.Hooks.AudioFailure != nil {
		s.Hooks.AudioFailure(err)
	}
}

func (s *station) recordingComplete(ev RecordingEvent) {
	s.Log.Info().Str("path", ev.Path).Dur("duration", ev.End.Sub(ev.Start)).Msg("recording complete")
	if s.Hooks.RecordingComplete != nil {
		s.Hooks.RecordingComplete(ev)
	}
}

func (s *station) transmissionComplete(ev TransmissionEvent) {
	s.Log.Info().Dur("duration", ev.End.Sub(ev.Start)).Msg("transmission complete")
	if s.Hooks.TransmissionComplete != nil {
		s.Hooks.TransmissionComplete(ev)
	}
}

// clearBuffer removes the previous recording. A failed recorder must not
// leave an old transmission behind to replay.
func (s *station) clearBuffer() {
	if err := os.Remove(s.opts.BufferPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.Log.Warn().Err(err).Str("path", s.opts.BufferPath).Msg("could not remove previous buffer")
	}
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
