package audio

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// Call is one engine call recorded by Fake.
type Call struct {
	Op   string // "start", "stop", "vox", "play", "tone"
	Arg  string
	Dev  string
	Tune string
}

// Fake is an Engine that records calls instead of running sox. Recordings
// write a small file on Stop so that callers see a finalized recording.
type Fake struct {
	mu    sync.Mutex
	calls []Call
	pid   int

	// StartError, if set, is returned by StartRecording.
	StartError error

	// StopError, if set, is returned by Recording.Stop.
	StopError error

	// VOXError, if set, is returned by RecordVOX.
	VOXError error

	// PlayError, if set, is returned by Play and PlayTone.
	PlayError error

	// OnPlay, if set, runs during Play. Tests use it to observe or move
	// time while playback blocks.
	OnPlay func(path string)

	// OnVOX, if set, runs during RecordVOX.
	OnVOX func(path string)

	// VOXSilent makes RecordVOX wait for ctx to be cancelled, as a recorder
	// that never hears voice would.
	VOXSilent bool
}

// NewFake creates a Fake engine.
func NewFake() *Fake {
	return &Fake{}
}

// Calls returns the recorded calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Ops returns just the operation names, in order.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.calls))
	for i, c := range f.calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns the number of calls with the given op.
func (f *Fake) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

// StartRecording records the call and returns a fake handle.
func (f *Fake) StartRecording(device, path string) (Recording, error) {
	f.record(Call{Op: "start", Arg: path, Dev: device})
	if f.StartError != nil {
		return nil, f.StartError
	}
	f.mu.Lock()
	f.pid++
	pid := 1000 + f.pid
	f.mu.Unlock()
	return &fakeRecording{engine: f, pid: pid, path: path}, nil
}

// RecordVOX records the call and writes path.
func (f *Fake) RecordVOX(ctx context.Context, device, path, tuning string) error {
	f.record(Call{Op: "vox", Arg: path, Dev: device, Tune: tuning})
	if f.OnVOX != nil {
		f.OnVOX(path)
	}
	if f.VOXSilent {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.VOXError != nil {
		return f.VOXError
	}
	return writeFakeAudio(path)
}

// Play records the call.
func (f *Fake) Play(path string) error {
	f.record(Call{Op: "play", Arg: path})
	if f.OnPlay != nil {
		f.OnPlay(path)
	}
	return f.PlayError
}

// PlayTone records the call.
func (f *Fake) PlayTone(name string) error {
	f.record(Call{Op: "tone", Arg: name})
	return f.PlayError
}

type fakeRecording struct {
	engine  *Fake
	pid     int
	path    string
	stopped bool
}

func (r *fakeRecording) PID() int     { return r.pid }
func (r *fakeRecording) Path() string { return r.path }

func (r *fakeRecording) Stop() error {
	if r.stopped {
		return nil
	}
	r.stopped = true
	r.engine.record(Call{Op: "stop", Arg: r.path})
	if r.engine.StopError != nil {
		return r.engine.StopError
	}
	return writeFakeAudio(r.path)
}

func writeFakeAudio(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("OggS"), 0o644)
}
