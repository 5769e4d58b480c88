package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

// The recorder scripts receive: -q -t <device> default <path>; $5 is the path.
const recordScript = `#!/bin/sh
trap 'echo done >> "$5"; exit 0' INT
echo start > "$5"
while true; do sleep 0.05; done
`

const stubbornScript = `#!/bin/sh
trap '' INT
while true; do sleep 0.05; done
`

func TestSoxRecordingGracefulStop(t *testing.T) {
	t.Parallel()

	rec := writeScript(t, "rec.sh", recordScript)
	s := NewSox(rec, "true", "", time.Second)
	out := filepath.Join(t.TempDir(), "input", "buffer.ogg")

	r, err := s.StartRecording("alsa", out)
	require.NoError(t, err)
	assert.NotZero(t, r.PID())
	assert.Equal(t, out, r.Path())

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, r.Stop())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "start\ndone\n", string(data), "trap must run: the recorder was interrupted, not killed")

	assert.NoError(t, r.Stop(), "second stop is a no-op")
}

func TestSoxRecordingEscalatesToKill(t *testing.T) {
	t.Parallel()

	rec := writeScript(t, "stubborn.sh", stubbornScript)
	s := NewSox(rec, "true", "", 150*time.Millisecond)

	r, err := s.StartRecording("alsa", filepath.Join(t.TempDir(), "buffer.ogg"))
	require.NoError(t, err)

	start := time.Now()
	err = r.Stop()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "killed")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSoxStartMissingBinary(t *testing.T) {
	t.Parallel()

	s := NewSox(filepath.Join(t.TempDir(), "no-such-rec"), "", "", 0)
	_, err := s.StartRecording("alsa", filepath.Join(t.TempDir(), "buffer.ogg"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSoxPlay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := filepath.Join(dir, "played")
	play := writeScript(t, "play.sh", "#!/bin/sh\necho \"$2\" >> "+log+"\n")
	clip := filepath.Join(dir, "clip.ogg")
	require.NoError(t, os.WriteFile(clip, []byte("OggS"), 0o644))

	tones := filepath.Join(dir, "tones")
	require.NoError(t, os.MkdirAll(tones, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tones, "BEEP.ogg"), []byte("OggS"), 0o644))

	s := NewSox("", play, tones, 0)
	require.NoError(t, s.Play(clip))
	require.NoError(t, s.PlayTone("BEEP"))

	data, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, clip+"\n"+filepath.Join(tones, "BEEP.ogg")+"\n", string(data))
}

func TestSoxPlayMissingFile(t *testing.T) {
	t.Parallel()

	s := NewSox("", "true", t.TempDir(), 0)
	assert.ErrorIs(t, s.Play(filepath.Join(t.TempDir(), "missing.ogg")), ErrUnavailable)
	assert.ErrorIs(t, s.PlayTone("NOPE"), ErrUnavailable)
}

func TestSoxPlayFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.ogg")
	require.NoError(t, os.WriteFile(clip, []byte("OggS"), 0o644))
	play := writeScript(t, "play.sh", "#!/bin/sh\necho 'no output device' 1>&2\nexit 2\n")

	err := NewSox("", play, "", 0).Play(clip)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "no output device")
}

func TestSoxRecordVOXArgs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	argLog := filepath.Join(dir, "args")
	rec := writeScript(t, "rec.sh", "#!/bin/sh\necho \"$@\" > "+argLog+"\n")
	out := filepath.Join(dir, "buffer.ogg")

	require.NoError(t, NewSox(rec, "", "", 0).RecordVOX(context.Background(), "alsa", out, "1 0.1 5% 1 1.0 5%"))

	data, err := os.ReadFile(argLog)
	require.NoError(t, err)
	assert.Equal(t, "-q -t alsa default "+out+" -V0 silence 1 0.1 5% 1 1.0 5%\n", string(data))
}

func TestSoxRecordVOXCancelled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script string
	}{
		{"honours interrupt", recordScript},
		{"killed after grace", stubbornScript},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := writeScript(t, "rec.sh", tt.script)
			s := NewSox(rec, "", "", 150*time.Millisecond)
			out := filepath.Join(t.TempDir(), "buffer.ogg")

			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(100*time.Millisecond, cancel)

			start := time.Now()
			err := s.RecordVOX(ctx, "alsa", out, "1 0.1 5% 1 1.0 5%")
			assert.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, ErrUnavailable, "shutdown is not an engine failure")
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestSoxRecordVOXFailure(t *testing.T) {
	t.Parallel()

	rec := writeScript(t, "rec.sh", "#!/bin/sh\necho 'no input device' >&2\nexit 2\n")
	err := NewSox(rec, "", "", 0).RecordVOX(context.Background(), "alsa", filepath.Join(t.TempDir(), "b.ogg"), "")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "no input device")
}

func TestNormalizeStopErr(t *testing.T) {
	assert.NoError(t, normalizeStopErr(nil))
	assert.NoError(t, normalizeStopErr(&exec.ExitError{}))

	other := errors.New("wait failed")
	assert.Equal(t, other, normalizeStopErr(other))
}
