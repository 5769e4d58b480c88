package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/repeater/internal/config"
	"github.com/sweeney/repeater/internal/gpio"
	"github.com/sweeney/repeater/internal/notify"
	"github.com/sweeney/repeater/internal/recordings"
	"github.com/sweeney/repeater/internal/repeater"
	"github.com/sweeney/repeater/internal/status"
)

func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	yaml := fmt.Sprintf(`mode: simplex-cor
enabled: true
store_recordings: true
paths:
  buffer: %[1]s/input/buffer.ogg
  recordings: %[1]s/recordings
  database: %[1]s/recordings.db
  sounds: %[1]s/sounds
gpio:
  backend: virtual
logging:
  level: warn
%[2]s`, dir, extra)
	path := filepath.Join(dir, "repeater.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path, dir
}

func TestParseFlags(t *testing.T) {
	f, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "/etc/repeater/repeater.yaml", f.configPath)
	assert.False(t, f.printState)
	assert.False(t, f.archive)

	f, err = parseFlags([]string{"-c", "/tmp/r.yaml", "--log-level", "debug", "--print-state"})
	require.NoError(t, err)
	assert.Equal(t, flags{configPath: "/tmp/r.yaml", logLevel: "debug", printState: true}, f)

	_, err = parseFlags([]string{"--bogus"})
	assert.Error(t, err)
}

func TestRunRejectsBadConfig(t *testing.T) {
	path, _ := writeConfig(t, "transmit_timeout: 0\n")
	err := run(flags{configPath: path}, io.Discard, io.Discard, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	err = run(flags{configPath: filepath.Join(t.TempDir(), "missing.yaml")}, io.Discard, io.Discard, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	path, _ = writeConfig(t, "")
	err = run(flags{configPath: path, logLevel: "chatty"}, io.Discard, io.Discard, nil)
	assert.ErrorIs(t, err, config.ErrInvalid, "flag override is validated too")

	var logged loggedError
	assert.False(t, errors.As(err, &logged), "config errors precede the logger")
	var console bytes.Buffer
	reportFatal(&console, err)
	line := console.String()
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`, line, "fatal line is timestamped")
	assert.Contains(t, line, "fatal")
	assert.Contains(t, line, "chatty")
	assert.Equal(t, 1, strings.Count(line, "\n"))
}

func TestRunLogsHardwareFailureOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repeater.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: duplex-cor\ngpio:\n  backend: chip\n  chip: no-such-chip\n"), 0o644))

	var stderr bytes.Buffer
	err := run(flags{configPath: path}, io.Discard, &stderr, nil)
	require.ErrorIs(t, err, gpio.ErrHardwareIO)

	var logged loggedError
	assert.True(t, errors.As(err, &logged), "already written to the log, main must not repeat it")
	assert.Equal(t, 1, strings.Count(stderr.String(), " FTL "), "one fatal line")
	assert.Regexp(t, `(?m)^\d{4}-\d{2}-\d{2}T\S+ FTL fatal`, stderr.String())
}

func TestRunPrintState(t *testing.T) {
	path, _ := writeConfig(t, "")
	var out bytes.Buffer
	require.NoError(t, run(flags{configPath: path, printState: true}, &out, io.Discard, nil))
	assert.Equal(t, "COS: LOW (carrier absent)\n", out.String())
}

func TestRunStopsOnSignal(t *testing.T) {
	path, dir := writeConfig(t, "")
	sig := make(chan os.Signal, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		sig <- syscall.SIGTERM
	}()

	done := make(chan error, 1)
	go func() { done <- run(flags{configPath: path}, io.Discard, io.Discard, sig) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop on SIGTERM")
	}

	_, err := os.Stat(filepath.Join(dir, "recordings.db"))
	assert.NoError(t, err, "recordings store opened")
}

func TestRunArchiveDisabled(t *testing.T) {
	path, _ := writeConfig(t, "")
	var out bytes.Buffer
	require.NoError(t, run(flags{configPath: path, archive: true}, &out, io.Discard, nil))
	assert.Empty(t, out.String())
}

func TestBuildHooks(t *testing.T) {
	dir := t.TempDir()
	store, err := recordings.Open(filepath.Join(dir, "r.db"), filepath.Join(dir, "recordings"))
	require.NoError(t, err)
	defer store.Close()

	buf := filepath.Join(dir, "buffer.ogg")
	require.NoError(t, os.WriteFile(buf, []byte("OggS"), 0o644))

	t0 := time.Date(2026, 4, 1, 8, 0, 0, 0, time.Local)
	tracker := status.NewTracker(t0, status.Config{})
	pub := notify.NewFakePublisher()
	dispatcher := notify.NewDispatcher(pub, nil, zerolog.Nop())

	hooks := buildHooks(tracker, store, dispatcher, zerolog.Nop())
	hooks.StateChange(repeater.StateIdle, repeater.StateRecording, t0)
	hooks.RecordingComplete(repeater.RecordingEvent{Path: buf, Start: t0, End: t0.Add(3 * time.Second)})
	hooks.TransmissionComplete(repeater.TransmissionEvent{Mode: repeater.ModeSimplexCOR, Received: t0, Start: t0.Add(3 * time.Second), End: t0.Add(6 * time.Second)})
	hooks.StateChange(repeater.StateRecording, repeater.StateIdle, t0.Add(6*time.Second))
	require.True(t, dispatcher.Wait(time.Second))

	snap := tracker.Snapshot()
	assert.Equal(t, status.Counts{Recordings: 1, Transmissions: 1}, snap.Counts)
	assert.Equal(t, repeater.StateIdle, snap.State)

	list, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "20260401080003.ogg", list[0].Name())

	assert.Len(t, pub.Events(), 1)
}

func TestBuildHooksWithoutStore(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{})
	hooks := buildHooks(tracker, nil, notify.NewDispatcher(nil, nil, zerolog.Nop()), zerolog.Nop())
	hooks.RecordingComplete(repeater.RecordingEvent{Path: "/nonexistent"})
	hooks.AudioFailure(fmt.Errorf("boom"))

	snap := tracker.Snapshot()
	assert.Equal(t, 1, snap.Counts.Recordings)
	assert.Equal(t, 1, snap.Counts.AudioFailures)
	assert.Nil(t, storeLister(nil))
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://broker:1883"
	cfg.CourtesyTone = "off"

	sc := statusConfig(cfg, "virtual")
	assert.Empty(t, sc.Broker, "broker hidden when mqtt is disabled")
	assert.Empty(t, sc.CourtesyTone)
	assert.Equal(t, "virtual", sc.GPIOBackend)
	assert.Equal(t, int64(120), sc.TimeoutSeconds)

	cfg.MQTT.Enabled = true
	assert.Equal(t, "tcp://broker:1883", statusConfig(cfg, "virtual").Broker)
}

func TestArchiveOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Host = "ftp.example.org"
	cfg.Archive.Path = "/uploads/repeater"
	cfg.Archive.DeleteOnSuccess = true

	o := archiveOptions(cfg)
	assert.Equal(t, 21, o.Port)
	assert.Equal(t, 30*time.Second, o.Timeout)
	assert.Equal(t, "/uploads/repeater", o.Dir)
	assert.True(t, o.DeleteOnSuccess)
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}
