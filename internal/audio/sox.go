package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultStopGrace is how long a recorder gets to exit after SIGINT.
const DefaultStopGrace = 2 * time.Second

// Sox runs the sox "rec" and "play" front ends.
type Sox struct {
	RecordBin string
	PlayBin   string

	// ToneDir holds <name>.ogg courtesy tones.
	ToneDir string

	// StopGrace bounds the wait after interrupting a recorder.
	StopGrace time.Duration
}

// NewSox creates an engine using the given binaries. Empty names fall back to
// "rec" and "play" on PATH.
func NewSox(recordBin, playBin, toneDir string, stopGrace time.Duration) *Sox {
	if recordBin == "" {
		recordBin = "rec"
	}
	if playBin == "" {
		playBin = "play"
	}
	if stopGrace <= 0 {
		stopGrace = DefaultStopGrace
	}
	return &Sox{
		RecordBin: recordBin,
		PlayBin:   playBin,
		ToneDir:   toneDir,
		StopGrace: stopGrace,
	}
}

// StartRecording runs "rec -t <device> default <path>" in the background.
// The recorder is not tied to a context: cancelling one would kill it and
// truncate the file.
func (s *Sox) StartRecording(device, path string) (Recording, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrUnavailable, filepath.Dir(path), err)
	}

	cmd := exec.Command(s.RecordBin, "-q", "-t", device, "default", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrUnavailable, s.RecordBin, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	return &soxRecording{
		path:    path,
		process: cmd.Process,
		stderr:  &stderr,
		waitErr: waitErr,
		grace:   s.StopGrace,
	}, nil
}

// RecordVOX runs rec with a "silence" effect so that it starts on voice and
// exits after the configured trailing silence. Cancelling ctx sends SIGINT
// and kills the recorder if it is still running after StopGrace.
func (s *Sox) RecordVOX(ctx context.Context, device, path, tuning string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrUnavailable, filepath.Dir(path), err)
	}
	args := []string{"-q", "-t", device, "default", path, "-V0", "silence"}
	args = append(args, strings.Fields(tuning)...)

	cmd := exec.CommandContext(ctx, s.RecordBin, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = s.StopGrace
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrUnavailable, s.RecordBin, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Play plays a file and blocks until it finishes.
func (s *Sox) Play(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return run(s.PlayBin, "-q", path)
}

// PlayTone plays <ToneDir>/<name>.ogg.
func (s *Sox) PlayTone(name string) error {
	return s.Play(filepath.Join(s.ToneDir, name+".ogg"))
}

func run(bin string, args ...string) error {
	cmd := exec.Command(bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrUnavailable, bin, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

type soxRecording struct {
	path    string
	process *os.Process
	stderr  *bytes.Buffer
	waitErr <-chan error
	grace   time.Duration

	stopOnce sync.Once
	stopErr  error
}

func (r *soxRecording) PID() int {
	return r.process.Pid
}

func (r *soxRecording) Path() string {
	return r.path
}

func (r *soxRecording) Stop() error {
	r.stopOnce.Do(func() {
		_ = r.process.Signal(os.Interrupt)

		select {
		case err, ok := <-r.waitErr:
			if ok {
				r.stopErr = normalizeStopErr(err)
			}
		case <-time.After(r.grace):
			_ = r.process.Kill()
			<-r.waitErr
			r.stopErr = fmt.Errorf("%w: recorder pid %d ignored interrupt for %v, killed", ErrUnavailable, r.process.Pid, r.grace)
			return
		}

		if r.stopErr != nil {
			r.stopErr = fmt.Errorf("%w: recorder: %v: %s", ErrUnavailable, r.stopErr, strings.TrimSpace(r.stderr.String()))
		}
	})
	return r.stopErr
}

// normalizeStopErr accepts any exit caused by the interrupt. sox exits
// non-zero on SIGINT after finalizing the file.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
