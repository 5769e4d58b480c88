package gpio

import (
	"fmt"
	"sync"
)

// Write records a single electrical write made through a VirtualBackend.
type Write struct {
	Name  string
	Value int
}

// VirtualBackend keeps line values in memory. It is selected automatically
// when no GPIO chip is present and is the backend used in tests.
type VirtualBackend struct {
	mu     sync.Mutex
	lines  map[int]*virtualLine
	writes []Write

	// ReadError, if set, is returned by every line read.
	ReadError error

	// WriteError, if set, is returned by every line write.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewVirtualBackend creates an empty in-memory backend.
func NewVirtualBackend() *VirtualBackend {
	return &VirtualBackend{lines: make(map[int]*virtualLine)}
}

// Name returns "virtual".
func (b *VirtualBackend) Name() string {
	return "virtual"
}

// Request claims a line. Claiming the same offset twice is an error, as on
// real hardware.
func (b *VirtualBackend) Request(name string, offset int, dir Direction) (Line, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if l, ok := b.lines[offset]; ok && !l.released {
		return nil, fmt.Errorf("line %d busy (held by %s)", offset, l.name)
	}
	l := &virtualLine{backend: b, name: name, offset: offset, dir: dir}
	b.lines[offset] = l
	return l, nil
}

// Close marks the backend as closed.
func (b *VirtualBackend) Close() error {
	b.mu.Lock()
	b.Closed = true
	b.mu.Unlock()
	return nil
}

// Set drives the electrical value of a line from outside, simulating a
// signal arriving on an input.
func (b *VirtualBackend) Set(offset int, value int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.lines[offset]; ok {
		l.value = value
	}
}

// Value returns the electrical value of a line.
func (b *VirtualBackend) Value(offset int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.lines[offset]; ok {
		return l.value
	}
	return 0
}

// Released reports whether the line at offset was closed.
func (b *VirtualBackend) Released(offset int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.lines[offset]
	return ok && l.released
}

// Writes returns the ordered log of writes made to output lines.
func (b *VirtualBackend) Writes() []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Write, len(b.writes))
	copy(out, b.writes)
	return out
}

// ResetWrites clears the write log.
func (b *VirtualBackend) ResetWrites() {
	b.mu.Lock()
	b.writes = nil
	b.mu.Unlock()
}

type virtualLine struct {
	backend  *VirtualBackend
	name     string
	offset   int
	dir      Direction
	value    int
	released bool
}

func (l *virtualLine) Value() (int, error) {
	b := l.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ReadError != nil {
		return 0, b.ReadError
	}
	if l.released {
		return 0, fmt.Errorf("line %d released", l.offset)
	}
	return l.value, nil
}

func (l *virtualLine) SetValue(v int) error {
	b := l.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.WriteError != nil {
		return b.WriteError
	}
	if l.released {
		return fmt.Errorf("line %d released", l.offset)
	}
	if l.dir != Out {
		return fmt.Errorf("line %d is an input", l.offset)
	}
	l.value = v
	b.writes = append(b.writes, Write{Name: l.name, Value: v})
	return nil
}

// Close returns the line to an undriven input, like the chip backend.
func (l *virtualLine) Close() error {
	b := l.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	l.released = true
	l.dir = In
	l.value = 0
	return nil
}
